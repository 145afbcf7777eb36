package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/infosage/backend/internal/storage/models"
)

type CorrectiveRequest struct {
	Claim       string
	Verdict     models.Verdict
	Confidence  float64
	Rationale   string
	KeyFindings []string
	// Format is one of whatsapp, sms, social or explainer.
	Format string
}

// GenerateCorrective writes a shareable correction for one output format.
func (c *Client) GenerateCorrective(ctx context.Context, req CorrectiveRequest) (string, error) {
	prompt, maxTokens, err := correctivePrompt(req)
	if err != nil {
		return "", err
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		Kind:        "corrective_" + req.Format,
		Model:       c.cfg.FastModel,
		UserPrompt:  prompt,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate %s output: %w", req.Format, err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("empty %s output: %w", req.Format, ErrInvalidResponse)
	}
	return content, nil
}

func correctivePrompt(req CorrectiveRequest) (string, int, error) {
	verdict := strings.ToUpper(string(req.Verdict))
	header := fmt.Sprintf("CLAIM: %q\nVERDICT: %s\nRATIONALE: %s\n", req.Claim, verdict, req.Rationale)

	switch req.Format {
	case "whatsapp":
		findings := "See rationale above"
		if len(req.KeyFindings) > 0 {
			findings = strings.Join(req.KeyFindings, ", ")
		}
		return `You are a fact-checker creating corrective messages. Create a WhatsApp-friendly fact-check message for sharing.

` + header + "KEY FINDINGS: " + findings + `

Guidelines:
- Maximum 1024 characters
- Use emojis appropriately
- Make it shareable and easy to understand
- Include a clear correction and why it matters
- Be conversational and friendly

Create the WhatsApp message now:`, 800, nil

	case "sms":
		return `You are a fact-checker creating corrective messages. Create a concise SMS fact-check message.

` + header + `
Guidelines:
- Maximum 160 characters
- Clear and direct
- No emojis
- Include verdict clearly
- End with a fact-check resource link reference

Create the SMS message now:`, 300, nil

	case "social":
		return `You are a fact-checker creating corrective messages for social media. Create a compelling Twitter/X-style post.

` + header + `
Guidelines:
- Maximum 280 characters
- Engaging and shareable
- Use hashtags if appropriate (#FactCheck)
- Clear correction of misinformation

Create the social media post now:`, 500, nil

	case "explainer":
		findings := "N/A"
		if len(req.KeyFindings) > 0 {
			findings = strings.Join(req.KeyFindings, "\n- ")
		}
		confidence := req.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		return `You are a fact-checker journalist creating detailed corrective articles. Write a comprehensive explainer about this fact-check.

` + header + "KEY FINDINGS: " + findings + fmt.Sprintf("\nCONFIDENCE: %d%%\n", int(math.Round(confidence*100))) + `
Write a detailed, well-structured explainer that:
- Starts with "The Claim" section summarizing the information
- Provides "The Facts" section with evidence
- Explains "Why This Matters" for the audience
- Is 200-300 words in length
- Ends with actionable takeaways

Create the explainer article now:`, 1000, nil
	}

	return "", 0, fmt.Errorf("unsupported output type %q", req.Format)
}
