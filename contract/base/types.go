// Package base defines the shared types of the contract subsystem: deploy
// data types and payloads, parameter conversion and the collaborator
// interfaces the deploy engine is wired against.
package base

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// ContentTypeZip carries the contract package as hex encoded zip bytes
	ContentTypeZip = "application/zip"
	// ContentTypeTBears carries a local source directory path, development mode only
	ContentTypeTBears = "application/tbears"
)

var (
	ErrInvalidDataType    = errors.New("invalid deploy data type")
	ErrInvalidContentType = errors.New("invalid deploy content type")
	ErrInvalidParams      = errors.New("invalid deploy params")
	// ErrUpdateNotSupported marks the update path, which is accepted into the
	// queue but always fails at commit time.
	ErrUpdateNotSupported = errors.New("contract update is not supported")
)

// DataType is the kind of a deploy transaction
type DataType int

const (
	DataTypeInstall DataType = iota
	DataTypeUpdate
	DataTypeAudit
)

func (t DataType) String() string {
	switch t {
	case DataTypeInstall:
		return "install"
	case DataTypeUpdate:
		return "update"
	case DataTypeAudit:
		return "audit"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseDataType parses the wire name of a data type. Unknown names fail,
// there is no open ended pass through.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "install":
		return DataTypeInstall, nil
	case "update":
		return DataTypeUpdate, nil
	case "audit":
		return DataTypeAudit, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidDataType, s)
	}
}

// RawPayload is the deploy calldata as received from a transaction
type RawPayload struct {
	ContentType string            `json:"contentType"`
	Content     string            `json:"content"`
	Params      map[string]string `json:"params"`
}

// DeployData is the validated form of a deploy payload. Exactly one of
// Content and SourcePath is set, depending on the content type.
type DeployData struct {
	ContentType string
	// decoded zip bytes for ContentTypeZip
	Content []byte
	// local source directory for ContentTypeTBears
	SourcePath string
	Params     map[string]string
}

// DecodeDeployData validates the payload content type and decodes the
// content. Zip content must be hex with a 0x prefix.
func DecodeDeployData(payload *RawPayload) (*DeployData, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidParams)
	}

	data := &DeployData{
		ContentType: payload.ContentType,
		Params:      payload.Params,
	}
	switch payload.ContentType {
	case ContentTypeTBears:
		if payload.Content == "" {
			return nil, fmt.Errorf("%w: empty source path", ErrInvalidParams)
		}
		data.SourcePath = payload.Content
	case ContentTypeZip:
		if !strings.HasPrefix(payload.Content, "0x") {
			return nil, fmt.Errorf("%w: zip content needs 0x prefix", ErrInvalidParams)
		}
		raw, err := hex.DecodeString(payload.Content[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: decode zip content failed.err:%v", ErrInvalidParams, err)
		}
		data.Content = raw
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, payload.ContentType)
	}
	return data, nil
}
