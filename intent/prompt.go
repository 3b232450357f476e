package intent

import "fmt"

const promptTemplate = `Analyze the following user message and extract the intent and parameters.
The user is interacting with a tuition payment system.

Possible intents:
1. QUERY_BALANCE - User wants to check their tuition balance (requires studentNo)
2. PAY - User wants to pay tuition (requires studentNo, term, amount)
3. LIST_UNPAID - User wants to see unpaid tuitions (requires term)
4. UNKNOWN - None of the above

User message: %q

Respond in JSON format only:
{
  "intent": "QUERY_BALANCE|PAY|LIST_UNPAID|UNKNOWN",
  "studentNo": "extracted student number or null",
  "term": "extracted term (e.g., 2025-SUMMER) or null",
  "amount": extracted amount as number or null
}

Extract student numbers (format: numbers like 2023001, 2023002, etc.)
Extract terms (format: YYYY-SEASON like 2025-SUMMER, 2024-FALL, etc.)
Extract amounts (numbers representing payment amounts)
`

// BuildPrompt renders the classification instructions for text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}
