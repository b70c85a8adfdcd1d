package graph

import (
	"github.com/shineum/jobmail/internal/email"
)

// sendMailRequest is the request body of the sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject      string      `json:"subject"`
	Body         messageBody `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

// tokenResponse is the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildSendMailRequest addresses a plain-text notification to one recipient.
// Notifications are not kept in the sender's Sent Items.
func buildSendMailRequest(to string, req *email.Request, catalog email.Catalog) *sendMailRequest {
	return &sendMailRequest{
		Message: sendMailMessage{
			Subject: email.Subject(req),
			Body: messageBody{
				ContentType: "text",
				Content:     email.Body(req, catalog),
			},
			ToRecipients: []recipient{
				{EmailAddress: emailAddress{Address: to}},
			},
		},
	}
}
