package tracing

import (
	"context"
	"errors"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"customer_email": {},
	"email":          {},
	"phone":          {},
	"address":        {},
	"authorization":  {},
	"client_secret":  {},
}

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	secretPattern = regexp.MustCompile(`(sk|rk|whsec)_(live|test)_[A-Za-z0-9]+|pi_[A-Za-z0-9]+_secret_[A-Za-z0-9]+|shpat_[A-Za-z0-9]+`)
)

// SafeAttributes drops attributes that may carry customer PII or credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error whose message has emails and API secrets redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(Redact(err.Error()))
}

// Redact masks emails and credential-shaped tokens in a message.
func Redact(msg string) string {
	msg = emailPattern.ReplaceAllString(msg, "[email]")
	return secretPattern.ReplaceAllString(msg, "[secret]")
}

// ExtractContext restores the remote span context from inbound headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
