package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	ServiceNameKey contextKey = "service_name"
	KillIDKey      contextKey = "kill_id"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithKillID tags every log line written under ctx with the killmail id.
func WithKillID(ctx context.Context, killID uint64) context.Context {
	return context.WithValue(ctx, KillIDKey, killID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func GetMessageID(ctx context.Context) string {
	messageID, _ := ctx.Value(MessageIDKey).(string)
	return messageID
}

func GetServiceName(ctx context.Context) string {
	serviceName, _ := ctx.Value(ServiceNameKey).(string)
	return serviceName
}

func GetKillID(ctx context.Context) uint64 {
	killID, _ := ctx.Value(KillIDKey).(uint64)
	return killID
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, string(TraceIDKey), traceID)
	}
	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, string(MessageIDKey), messageID)
	}
	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}
	if killID := GetKillID(ctx); killID != 0 {
		fields = append(fields, string(KillIDKey), killID)
	}

	return fields
}
