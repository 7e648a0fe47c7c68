package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct encodes v, a JSON-tagged Go value, as a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// FromStruct decodes s into v.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ToStatus maps a service error onto a gRPC status.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	}
	switch apperr.KindOf(err) {
	case apperr.InvalidArgument:
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case apperr.PermissionDenied:
		return grpcstatus.Error(codes.PermissionDenied, err.Error())
	default:
		return grpcstatus.Error(codes.Unavailable, err.Error())
	}
}

// FromStatus maps a gRPC status back onto the service error kinds.
func FromStatus(err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.OK:
		return nil
	case codes.InvalidArgument:
		return apperr.New(apperr.InvalidArgument, st.Message())
	case codes.PermissionDenied:
		return apperr.New(apperr.PermissionDenied, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return apperr.New(apperr.Transient, st.Message())
	}
}

func invalidRequest(err error) error {
	return apperr.Invalidf("malformed request: %v", err)
}
