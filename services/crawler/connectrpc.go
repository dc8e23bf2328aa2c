package crawler

import (
	"context"
	"fmt"
	"kadai-backend/lib/portal"
	"kadai-backend/services/assignments"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "kadai.crawler.v1.CrawlerService"

const (
	CrawlProcedure           = "/" + serviceName + "/Crawl"
	LastOutcomesProcedure    = "/" + serviceName + "/LastOutcomes"
	ListAssignmentsProcedure = "/" + serviceName + "/ListAssignments"
)

type Lister interface {
	ListAssignments(ctx context.Context, owner string) ([]assignments.Record, error)
}

// ConnectApi exposes the service over connect. Messages are well-known
// protobuf types so no generated code is needed on either side.
type ConnectApi struct {
	service *Service
	lister  Lister
}

// NewConnectHandler returns the path prefix to mount the handler on and the
// handler itself.
func NewConnectHandler(service *Service, lister Lister, opts ...connect.HandlerOption) (string, http.Handler) {
	api := ConnectApi{service: service, lister: lister}
	mux := http.NewServeMux()
	mux.Handle(CrawlProcedure, connect.NewUnaryHandler(CrawlProcedure, api.Crawl, opts...))
	mux.Handle(LastOutcomesProcedure, connect.NewUnaryHandler(LastOutcomesProcedure, api.LastOutcomes, opts...))
	mux.Handle(ListAssignmentsProcedure, connect.NewUnaryHandler(ListAssignmentsProcedure, api.ListAssignments, opts...))
	return "/" + serviceName + "/", mux
}

func credentialFromValue(value *structpb.Value) *portal.Credential {
	fields := value.GetStructValue().GetFields()
	if fields == nil {
		return nil
	}
	return &portal.Credential{
		Identifier: fields["identifier"].GetStringValue(),
		Secret:     fields["secret"].GetStringValue(),
		BaseUrl:    fields["base_url"].GetStringValue(),
	}
}

func outcomesToValue(outcomes []Outcome) []any {
	out := make([]any, len(outcomes))
	for i, o := range outcomes {
		out[i] = map[string]any{
			"platform": string(o.Platform),
			"status":   string(o.Status),
			"reason":   o.Reason,
			"items":    o.Items,
		}
	}
	return out
}

func timeToValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// Crawl takes {owner, moodle?: credential, webclass?: credential} where a
// credential is {identifier, secret, base_url?}. It blocks until both
// portals are done and answers {outcomes: [...]}.
func (a ConnectApi) Crawl(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	owner := fields["owner"].GetStringValue()
	if owner == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("owner is required"))
	}
	creds := Credentials{
		Moodle:   credentialFromValue(fields["moodle"]),
		WebClass: credentialFromValue(fields["webclass"]),
	}
	if creds.Moodle == nil && creds.WebClass == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("no credential given for any portal"))
	}

	outcomes := a.service.CrawlAll(ctx, owner, creds)
	res, err := structpb.NewStruct(map[string]any{
		"outcomes": outcomesToValue(outcomes),
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func (a ConnectApi) LastOutcomes(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	outcomes, ok := a.service.LastOutcomes(req.Msg.GetValue())
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no recent crawl for %s", req.Msg.GetValue()))
	}
	res, err := structpb.NewStruct(map[string]any{
		"outcomes": outcomesToValue(outcomes),
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func (a ConnectApi) ListAssignments(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.ListValue], error) {
	owner := req.Msg.GetValue()
	if owner == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("owner is required"))
	}
	records, err := a.lister.ListAssignments(ctx, owner)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(records))
	for i, r := range records {
		values[i] = map[string]any{
			"id":        r.Id,
			"course":    r.CourseTitle,
			"title":     r.Title,
			"content":   r.Content,
			"url":       r.Url,
			"start":     timeToValue(r.Start),
			"due":       timeToValue(r.Due),
			"submitted": r.Submitted,
			"platform":  string(r.Platform),
		}
	}
	res, err := structpb.NewList(values)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}
