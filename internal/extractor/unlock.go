package extractor

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Unlocker removes encryption from a document. Implementations return
// ErrWrongPassword when the credential is rejected and the content unchanged
// when the document is not encrypted.
type Unlocker interface {
	Unlock(content []byte, password string) ([]byte, error)
}

// PDFUnlocker decrypts PDF documents with pdfcpu
type PDFUnlocker struct{}

var disableConfigDir sync.Once

// NewPDFUnlocker creates a pdfcpu backed unlocker
func NewPDFUnlocker() *PDFUnlocker {
	// pdfcpu writes a config directory under the user's home unless told otherwise
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFUnlocker{}
}

// Unlock implements Unlocker
func (u *PDFUnlocker) Unlock(content []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(content), &out, conf); err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case errors.Is(err, pdfcpu.ErrWrongPassword):
			return nil, ErrWrongPassword
		case strings.Contains(msg, "not encrypted"):
			return content, nil
		case strings.Contains(msg, "password"):
			return nil, ErrWrongPassword
		default:
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// unlockStatus is the outcome of the credential attempts
type unlockStatus int

const (
	statusUnlocked unlockStatus = iota
	statusPasswordRequired
)

type unlockResult struct {
	status  unlockStatus
	content []byte
	// attempt is the 1-based index of the credential that worked
	attempt int
}

// unlock tries each candidate in order. Only a rejected credential moves on to
// the next attempt; any other failure means the document is unreadable.
func unlock(u Unlocker, content []byte, candidates []string) (unlockResult, error) {
	for i, pw := range candidates {
		out, err := u.Unlock(content, pw)
		if err == nil {
			return unlockResult{status: statusUnlocked, content: out, attempt: i + 1}, nil
		}
		if errors.Is(err, ErrWrongPassword) {
			continue
		}
		return unlockResult{}, &ParseError{Reason: ReasonUnreadable, Err: err}
	}
	return unlockResult{status: statusPasswordRequired}, nil
}
