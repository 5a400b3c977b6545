package sora

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Video is the subset of the remote video object the service relies on.
type Video struct {
	ID       string      `json:"id"`
	Object   string      `json:"object,omitempty"`
	Model    string      `json:"model,omitempty"`
	Status   string      `json:"status"`
	Progress float64     `json:"progress,omitempty"`
	Size     string      `json:"size,omitempty"`
	Error    *VideoError `json:"error,omitempty"`

	DefaultVariant string   `json:"default_variant,omitempty"`
	Variant        string   `json:"variant,omitempty"`
	Variants       Variants `json:"variants,omitempty"`

	DownloadToken string `json:"download_token,omitempty"`
	ContentToken  string `json:"content_token,omitempty"`

	// Expiry fields are kept raw: the API has used both ISO-8601 strings and
	// unix seconds for them.
	ExpiresAt              json.RawMessage `json:"expires_at,omitempty"`
	DownloadTokenExpiresAt json.RawMessage `json:"download_token_expires_at,omitempty"`
	ContentTokenExpiresAt  json.RawMessage `json:"content_token_expires_at,omitempty"`
}

// VideoError is the failure detail attached to a failed video.
type VideoError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare message string.
func (e *VideoError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Message = msg
		return nil
	}
	type plain VideoError
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = VideoError(v)
	return nil
}

// Variants lists variant names. Entries may be strings or objects carrying
// a name or id; anything else is skipped.
type Variants []string

func (v *Variants) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		// A non-list value carries no usable variants.
		*v = nil
		return nil
	}
	out := make(Variants, 0, len(entries))
	for _, entry := range entries {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(entry, &obj); err != nil {
			continue
		}
		switch {
		case strings.TrimSpace(obj.Name) != "":
			out = append(out, strings.TrimSpace(obj.Name))
		case strings.TrimSpace(obj.ID) != "":
			out = append(out, strings.TrimSpace(obj.ID))
		}
	}
	*v = out
	return nil
}

// ErrorMessage returns the remote failure message, if any.
func (v *Video) ErrorMessage() string {
	if v == nil || v.Error == nil {
		return ""
	}
	return strings.TrimSpace(v.Error.Message)
}

// VariantName picks default_variant, then variant, then the first listed variant.
func (v *Video) VariantName() string {
	if v == nil {
		return ""
	}
	if s := strings.TrimSpace(v.DefaultVariant); s != "" {
		return s
	}
	if s := strings.TrimSpace(v.Variant); s != "" {
		return s
	}
	if len(v.Variants) > 0 {
		return v.Variants[0]
	}
	return ""
}

// Token returns download_token, falling back to content_token.
func (v *Video) Token() string {
	if v == nil {
		return ""
	}
	if s := strings.TrimSpace(v.DownloadToken); s != "" {
		return s
	}
	return strings.TrimSpace(v.ContentToken)
}

// TokenExpiry returns the first non-null expiry field, undecoded.
func (v *Video) TokenExpiry() json.RawMessage {
	if v == nil {
		return nil
	}
	for _, raw := range []json.RawMessage{v.ExpiresAt, v.DownloadTokenExpiresAt, v.ContentTokenExpiresAt} {
		if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw
		}
	}
	return nil
}
