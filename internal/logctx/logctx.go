package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the capability, stream and agent data found
// in the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(capabilityDataKey{}).(*CapabilityData); ok {
		r.AddAttrs(slog.Group("capability",
			slog.String("name", cd.Name),
			slog.String("plugin", cd.Plugin),
			slog.Bool("async", cd.Async),
		))
	}

	if sd, ok := ctx.Value(streamDataKey{}).(*StreamData); ok {
		r.AddAttrs(slog.Group("stream",
			slog.String("token", sd.Token),
		))
	}

	if ad, ok := ctx.Value(agentDataKey{}).(*AgentData); ok {
		r.AddAttrs(slog.Group("agent",
			slog.String("name", ad.Name),
			slog.String("conversation", ad.Conversation),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type capabilityDataKey struct{}

type CapabilityData struct {
	Name   string
	Plugin string
	Async  bool
}

func WithCapabilityData(ctx context.Context, data *CapabilityData) context.Context {
	return context.WithValue(ctx, capabilityDataKey{}, data)
}

type streamDataKey struct{}

type StreamData struct {
	Token string
}

func WithStreamData(ctx context.Context, data *StreamData) context.Context {
	return context.WithValue(ctx, streamDataKey{}, data)
}

type agentDataKey struct{}

type AgentData struct {
	Name         string
	Conversation string
}

func WithAgentData(ctx context.Context, data *AgentData) context.Context {
	return context.WithValue(ctx, agentDataKey{}, data)
}
