package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
	"github.com/louisbranch/duet/internal/platform/errors/i18n"
)

const maxBodyBytes = 16 << 10

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Locale   string            `json:"locale,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with a message localized for the request.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(apperrors.CodeUnknown, "", err)
	}
	httpStatus := appErr.Code.HTTPStatus()
	if httpStatus >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}
	tag := i18n.MatchAcceptLanguage(r.Header.Get("Accept-Language"))
	writeJSON(w, httpStatus, errorBody{Error: newErrorDetail(appErr, tag)})
}

// newErrorDetail renders the error through its gRPC status so HTTP and gRPC
// callers see the same reason, domain and localized message.
func newErrorDetail(appErr *apperrors.Error, tag language.Tag) errorDetail {
	message := i18n.Format(tag, string(appErr.Code), appErr.Metadata)
	st := status.Convert(appErr.ToGRPCStatus(tag.String(), message))
	detail := errorDetail{
		Code:    string(appErr.Code),
		Message: message,
		Status:  st.Code().String(),
	}
	for _, d := range st.Details() {
		switch d := d.(type) {
		case *errdetails.ErrorInfo:
			detail.Code = d.GetReason()
			detail.Domain = d.GetDomain()
			detail.Metadata = d.GetMetadata()
		case *errdetails.LocalizedMessage:
			detail.Locale = d.GetLocale()
			detail.Message = d.GetMessage()
		}
	}
	return detail
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.New(apperrors.CodeInvalidArgument, "request body is too large")
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "request body is not valid JSON", err)
	}
	return nil
}
