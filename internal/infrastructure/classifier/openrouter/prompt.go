package openrouter

import "fmt"

const extractionSystemPrompt = `You are a financial data extraction assistant. You extract structured transaction data from unstructured text, such as emails or OCR-processed documents.`

const extractionPromptTemplate = `Given the following raw text from an email and OCR-processed attachments, extract the following fields accurately as JSON:

- "text": a short description of the transaction
- "date": transaction date in YYYY-MM-DD format (use the email date %s if missing)
- "amount": transaction amount as a float (0.00 if missing)
- "currency": 3-letter ISO currency code, e.g. USD or SGD ("None" if missing)
- "vendor": merchant or counterparty of the transaction ("None" if missing)
- "type": "Debit" or "Credit" from the company's perspective:
  * "Debit" = money going OUT (expenses, payments made, purchases)
  * "Credit" = money coming IN (income, payments received, refunds)
- "reference_id": unique transaction or invoice identifier ("None" if missing)

Examples:

Raw text: "Invoice #INV-2024-001 from Office Supplies Co. for 250.00 EUR dated 2024-03-15. Payment due for office equipment purchase."
JSON: {"text": "Office equipment purchase", "date": "2024-03-15", "amount": 250.00, "currency": "EUR", "vendor": "Office Supplies Co.", "type": "Debit", "reference_id": "INV-2024-001"}

Raw text: "Payment received from Client ABC for services rendered. Amount: SGD 1,500.00. Reference: PAY-2024-445. Date: 2024-03-20"
JSON: {"text": "Payment received for services", "date": "2024-03-20", "amount": 1500.00, "currency": "SGD", "vendor": "Client ABC", "type": "Credit", "reference_id": "PAY-2024-445"}

Raw text: "Refund processed by Software Provider Ltd. Amount: USD 89.99. Refund ID: REF-789. Date: 2024-03-18"
JSON: {"text": "Refund from software provider", "date": "2024-03-18", "amount": 89.99, "currency": "USD", "vendor": "Software Provider Ltd.", "type": "Credit", "reference_id": "REF-789"}

Raw text: "Monthly subscription fee charged by Cloud Services Inc. $45.00 USD. Transaction ID: TXN-456789. Date: 2024-03-25"
JSON: {"text": "Monthly subscription fee", "date": "2024-03-25", "amount": 45.00, "currency": "USD", "vendor": "Cloud Services Inc.", "type": "Debit", "reference_id": "TXN-456789"}

Return ONLY the JSON object without any explanation, markdown formatting, or additional text.

Raw text from email and OCR attachments:
"""
%s
"""

JSON:`

const categorizationSystemPrompt = `You are an expert expense categorization assistant. You classify financial transactions into predefined categories.`

const categorizationPromptTemplate = `Classify the transaction below into exactly one of these categories:

- "Meals & Entertainment": restaurants, bars, catering, team meals, client dinners, entertainment venues
- "Transport": taxis, ride sharing, gas, parking, public transit, car rentals, vehicle maintenance
- "SaaS": software subscriptions, cloud services, online tools, digital platforms
- "Travel": hotels, flights, airfare, accommodation, travel booking sites
- "Office": office supplies, equipment, furniture, utilities, rent, phone bills
- "Other": anything that does not clearly fit the above

Examples:

Input: "UBER TRIP - SAN FRANCISCO, $23.45"
Output: {"label": "Transport"}

Input: "ADOBE CREATIVE CLOUD SUBSCRIPTION, $52.99"
Output: {"label": "SaaS"}

Input: "MARRIOTT HOTEL - CHICAGO, $189.00"
Output: {"label": "Travel"}

Input: "BLUE BOTTLE COFFEE - CLIENT MEETING, $34.50"
Output: {"label": "Meals & Entertainment"}

Input: "VERIZON BUSINESS - OFFICE PHONE, $89.99"
Output: {"label": "Office"}

Input: "WALMART - MISCELLANEOUS ITEMS, $23.45"
Output: {"label": "Other"}

Transaction:
"""
%s
"""

Return only a JSON object with a "label" field containing the category.`

func extractionMessages(text, hintDate string) []chatMessage {
	if hintDate == "" {
		hintDate = "None"
	}
	return []chatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(extractionPromptTemplate, hintDate, text)},
	}
}

func categorizationMessages(text string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: categorizationSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(categorizationPromptTemplate, text)},
	}
}
