package agents

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// mockChatModel scripts chat model replies for tests. The reply function
// sees the full message list so a test can branch on the system prompt.
type mockChatModel struct {
	reply func(messages []*schema.Message) (*schema.Message, error)
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.reply(input)
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.reply(input)
	if err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Send(msg, nil)
	sw.Close()
	return sr, nil
}

// fixedModel always answers with the same content.
func fixedModel(content string) *mockChatModel {
	return &mockChatModel{
		reply: func([]*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage(content, nil), nil
		},
	}
}

// failingModel always errors.
func failingModel(err error) *mockChatModel {
	return &mockChatModel{
		reply: func([]*schema.Message) (*schema.Message, error) {
			return nil, err
		},
	}
}
