package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/reqctx"
)

// Replier produces one companion reply for one student message.
type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

type ChatReply struct {
	Reply         string
	Cost          int64
	Balance       int64
	TransactionID uint64
}

// ChatService is the ledger's chat consumer: every assistant message costs a
// fixed number of points, debited before the model is called. If the model
// fails after the debit, the spend is refunded so the student never pays for
// a reply they did not get.
type ChatService interface {
	SendMessage(ctx context.Context, uid, message string) (*ChatReply, error)
}

type chatService struct {
	ledger      LedgerService
	replier     Replier
	messageCost int64
}

func NewChatService(ledger LedgerService, replier Replier, messageCost int64) ChatService {
	return &chatService{ledger: ledger, replier: replier, messageCost: messageCost}
}

func (s *chatService) SendMessage(ctx context.Context, uid, message string) (*ChatReply, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", ErrInvalidAmount)
	}
	messageID := uuid.NewString()

	spend, err := s.ledger.Spend(ctx, uid, s.messageCost,
		model.SourceChatMessage, messageID, "AI companion message")
	if err != nil {
		return nil, err
	}

	reply, err := s.replier.Reply(ctx, message)
	if err != nil {
		if _, refundErr := s.ledger.Refund(ctx, uid, s.messageCost, spend.TransactionID); refundErr != nil {
			log.Printf("[chat] rid=%s uid=%s refund of txn %d failed: %v",
				reqctx.RID(ctx), uid, spend.TransactionID, refundErr)
		}
		return nil, err
	}

	return &ChatReply{
		Reply:         reply,
		Cost:          s.messageCost,
		Balance:       spend.Balance,
		TransactionID: spend.TransactionID,
	}, nil
}
