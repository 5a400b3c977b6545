package domain

import "strings"

// Allowed clip lengths in seconds.
var AllowedSeconds = []int{4, 8, 12}

const (
	DefaultSeconds = 8
	DefaultSize    = "1920x1080"
	DefaultUserID  = "demo-user"
)

// OfficialSizes are the resolution presets accepted by the remote API.
var OfficialSizes = []string{"480x480", "720x1280", "1080x1920", "1920x1080", "2560x1440"}

var sizeAliases = map[string]string{
	"1:1":       "480x480",
	"square":    "480x480",
	"9:16":      "1080x1920",
	"portrait":  "1080x1920",
	"vertical":  "1080x1920",
	"16:9":      "1920x1080",
	"landscape": "1920x1080",
	"4:3":       "1920x1080",
}

// VideoRequest is the create-job contract accepted from the frontend.
type VideoRequest struct {
	Prompt  string `json:"prompt" validate:"required,min=4,minwords=2"`
	Seconds int    `json:"seconds" validate:"oneof=4 8 12"`
	Size    string `json:"size" validate:"required,oneof=480x480 720x1280 1080x1920 1920x1080 2560x1440"`
	UserID  string `json:"user_id" validate:"max=255"`
}

// Normalize applies defaults and resolves size aliases before validation.
func (r *VideoRequest) Normalize(defaultUser string) {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Seconds == 0 {
		r.Seconds = DefaultSeconds
	}
	if strings.TrimSpace(r.Size) == "" {
		r.Size = DefaultSize
	} else if resolved, ok := ResolveSize(r.Size); ok {
		r.Size = resolved
	}
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		r.UserID = defaultUser
	}
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
}

// ResolveSize maps an official size or an aspect-ratio alias onto an official size.
func ResolveSize(preference string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(preference))
	for _, size := range OfficialSizes {
		if value == size {
			return size, true
		}
	}
	resolved, ok := sizeAliases[value]
	return resolved, ok
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
