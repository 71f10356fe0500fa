package claudecode

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestClient_ReadsMessages(t *testing.T) {
	stdout := strings.NewReader(
		`{"type":"system","subtype":"init","session_id":"conv-1"}` + "\n" +
			`{"type":"result","is_error":false,"total_cost_usd":0.02}` + "\n")
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdout, testLogger(t))
	received := make(chan *CLIMessage, 2)
	client.SetMessageHandler(func(msg *CLIMessage) {
		received <- msg
	})

	finished := client.Start(context.Background())
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("read loop did not finish")
	}

	require.Len(t, received, 2)
	first := <-received
	assert.Equal(t, MessageTypeSystem, first.Type)
	assert.Equal(t, "conv-1", first.SessionID)
	second := <-received
	assert.Equal(t, MessageTypeResult, second.Type)
	assert.InDelta(t, 0.02, second.TotalCostUSD, 1e-9)
}

func TestClient_ControlRequestDispatch(t *testing.T) {
	stdout := strings.NewReader(
		`{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","tool_use_id":"toolu_1","input":{"command":"ls"}}}` + "\n")
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdout, testLogger(t))
	handled := make(chan string, 1)
	client.SetRequestHandler(func(requestID string, req *ControlRequest) {
		assert.Equal(t, SubtypeCanUseTool, req.Subtype)
		assert.Equal(t, "Bash", req.ToolName)
		handled <- requestID
	})

	<-client.Start(context.Background())

	select {
	case id := <-handled:
		assert.Equal(t, "req-1", id)
	case <-time.After(time.Second):
		t.Fatal("control request was not dispatched")
	}
}

func TestClient_ControlRequestWithoutHandlerFailsClosed(t *testing.T) {
	stdout := strings.NewReader(
		`{"type":"control_request","request_id":"req-9","request":{"subtype":"can_use_tool","tool_name":"Bash"}}` + "\n")
	var stdin bytes.Buffer

	client := NewClient(&stdin, stdout, testLogger(t))
	<-client.Start(context.Background())

	var resp ControlResponseMessage
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &resp))
	assert.Equal(t, MessageTypeControlResponse, resp.Type)
	assert.Equal(t, "req-9", resp.RequestID)
	assert.Equal(t, "error", resp.Response.Subtype)
}

func TestClient_SendUserMessage(t *testing.T) {
	var stdin bytes.Buffer
	client := NewClient(&stdin, strings.NewReader(""), testLogger(t))

	require.NoError(t, client.SendUserMessage("hello"))

	var msg UserMessage
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &msg))
	assert.Equal(t, MessageTypeUser, msg.Type)
	assert.Equal(t, "user", msg.Message.Role)
	assert.Equal(t, "hello", msg.Message.Content)
}

func TestClient_SendUserBlocks(t *testing.T) {
	var stdin bytes.Buffer
	client := NewClient(&stdin, strings.NewReader(""), testLogger(t))

	require.NoError(t, client.SendUserBlocks([]PromptBlock{
		{Type: "text", Text: "what is this image?"},
		{Type: "image", Source: &ImageSource{Type: "base64", MediaType: "image/png", Data: "aWJt"}},
	}))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &raw))
	message := raw["message"].(map[string]interface{})
	blocks := message["content"].([]interface{})
	require.Len(t, blocks, 2)
	image := blocks[1].(map[string]interface{})
	assert.Equal(t, "image", image["type"])
}

func TestClient_SendInterrupt(t *testing.T) {
	var stdin bytes.Buffer
	client := NewClient(&stdin, strings.NewReader(""), testLogger(t))

	require.NoError(t, client.SendInterrupt())

	var req SDKControlRequest
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &req))
	assert.Equal(t, MessageTypeControlRequest, req.Type)
	assert.Equal(t, SubtypeInterrupt, req.Request.Subtype)
	assert.NotEmpty(t, req.RequestID)
}
