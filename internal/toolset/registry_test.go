package toolset

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type pingArgs struct {
	Name string `json:"name" jsonschema:"required"`
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{Name: "ping", FeatureSet: "lobby.chat", Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
		return Text("pong"), nil
	}}
	require.NoError(t, reg.Register(tool))
	require.Error(t, reg.Register(tool))
}

func TestListForFiltersByFeatureSet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Tool{Name: "a", FeatureSet: "lobby.chat"}))
	require.NoError(t, reg.Register(&Tool{Name: "b", FeatureSet: "game.commands"}))

	only := reg.ListFor(func(fs string) bool { return fs == "lobby.chat" })
	require.Len(t, only, 1)
	require.Equal(t, "a", only[0].Name)
}

func TestDecodeArgsStrict(t *testing.T) {
	args, err := DecodeArgs[pingArgs]([]byte(`{"name":"abc"}`))
	require.NoError(t, err)
	require.Equal(t, "abc", args.Name)

	_, err = DecodeArgs[pingArgs]([]byte(`{"name":"abc","extra":1}`))
	require.Error(t, err)
}

func TestGenerateSchemaMarksRequired(t *testing.T) {
	schema := GenerateSchema[pingArgs]()
	required, ok := schema["required"].([]any)
	require.True(t, ok)
	require.Contains(t, required, "name")
}
