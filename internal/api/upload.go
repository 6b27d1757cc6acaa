package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/risk"
)

// multipartOverhead is the allowance for form fields around the file part
const multipartOverhead = 1024 * 1024

// requestError carries the HTTP status for a rejected request
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// readDocument reads the statement and credentials from a multipart form.
// Accepted fields: file, password, identity (or pan), dob.
func (s *Server) readDocument(c *gin.Context) (extractor.Document, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return extractor.Document{}, s.tooLarge()
		}
		return extractor.Document{}, &requestError{status: http.StatusBadRequest, msg: "No file provided"}
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		return extractor.Document{}, s.tooLarge()
	}

	content, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return extractor.Document{}, &requestError{status: http.StatusBadRequest, msg: "Failed to read file"}
	}
	if int64(len(content)) > s.maxUpload {
		return extractor.Document{}, s.tooLarge()
	}

	identity := c.PostForm("identity")
	if identity == "" {
		identity = c.PostForm("pan")
	}

	return extractor.Document{
		Content:  content,
		Password: c.PostForm("password"),
		Identity: extractor.Identity{
			PAN:         strings.TrimSpace(identity),
			DateOfBirth: strings.TrimSpace(c.PostForm("dob")),
		},
	}, nil
}

func (s *Server) tooLarge() error {
	return &requestError{
		status: http.StatusRequestEntityTooLarge,
		msg:    fmt.Sprintf("File too large; maximum size is %d bytes", s.maxUpload),
	}
}

// formAnswers reads questionnaire answers from a multipart form. Answers are
// given either as ordered "answers" values (repeated or comma-separated) or
// as one field per question ID.
func formAnswers(c *gin.Context) ([]string, error) {
	if values := c.PostFormArray("answers"); len(values) > 0 {
		if len(values) == 1 && strings.Contains(values[0], ",") {
			values = strings.Split(values[0], ",")
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = strings.TrimSpace(v)
		}
		return out, nil
	}

	byID := make(map[string]string)
	for _, q := range risk.Questionnaire() {
		if v, ok := c.GetPostForm(q.ID); ok {
			byID[q.ID] = v
		}
	}
	return risk.AnswersFromMap(byID)
}
