package backend

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const customContext = "You are Krab, the meme crab! CLACK CLACK! Make crab puns, reference crab rave!"

type customRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

// customBuilder posts to an arbitrary endpoint. The history is not sent;
// only the persona travels in the context field.
type customBuilder struct{}

func (customBuilder) Kind() Kind { return KindCustom }

func (customBuilder) BuildRequest(_ []ContextEntry, newMessage string, cfg Config) (RequestSpec, error) {
	target, err := endpoint(KindCustom, cfg.BaseURL, "")
	if err != nil {
		return RequestSpec{}, err
	}
	payload := customRequest{Message: newMessage, Context: customContext}
	return jsonRequest(KindCustom, target, payload, bearer(nil, cfg.Token))
}

// ParseResponse accepts {"response": ...}, then {"message": ...}, then the
// raw body as text.
func (customBuilder) ParseResponse(status int, body []byte) (string, error) {
	if status < 200 || status > 299 {
		return "", statusError(KindCustom, status, body)
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"response", "message"} {
			if res := gjson.GetBytes(body, path); res.Type == gjson.String {
				return res.String(), nil
			}
		}
	}
	if !utf8.Valid(body) {
		return "", newError(InvalidResponse, KindCustom, "body is not text")
	}
	return string(body), nil
}
