package ai

import (
	"fmt"
	"strings"

	"github.com/nhle/unibox/internal/model"
)

func analyzePrompt(subject, body string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following email and provide:\n")
	sb.WriteString("1. Intent (inquiry, complaint, request, feedback, order, etc.)\n")
	sb.WriteString("2. Sentiment (positive, neutral, negative)\n")
	sb.WriteString("3. Priority (low, medium, high, urgent)\n")
	sb.WriteString("4. A brief summary\n\n")
	fmt.Fprintf(&sb, "Email Subject: %s\n", subject)
	fmt.Fprintf(&sb, "Email Body: %s\n\n", body)
	sb.WriteString("Respond in JSON format:\n")
	sb.WriteString(`{"intent": "...", "sentiment": "...", "priority": "...", "summary": "..."}`)
	return sb.String()
}

func mentionsPrompt(body string, catalog []model.CatalogEntry) string {
	names := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		names = append(names, entry.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Given this email body: %q\n\n", body)
	fmt.Fprintf(&sb, "And these product names: %s\n\n", strings.Join(names, ", "))
	sb.WriteString("Which products (if any) are mentioned or relevant? ")
	sb.WriteString("Return only the product names as a JSON array.")
	return sb.String()
}

func replyPrompt(subject, body string, mentioned []model.CatalogEntry) string {
	var sb strings.Builder
	sb.WriteString("Generate a professional and helpful reply to the following email.\n")
	sb.WriteString("Make it polite, concise, and actionable. ")
	sb.WriteString("If products are mentioned, include relevant product information.\n\n")

	if len(mentioned) > 0 {
		sb.WriteString("Relevant products:\n")
		for _, entry := range mentioned {
			availability := "Available"
			if !entry.Available {
				availability = "Out of stock"
			}
			fmt.Fprintf(&sb, "- %s: %s (%s)\n", entry.Name, entry.Description, availability)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Email Subject: %s\n", subject)
	fmt.Fprintf(&sb, "Email Body: %s\n\n", body)
	sb.WriteString("Generate a professional reply:")
	return sb.String()
}
