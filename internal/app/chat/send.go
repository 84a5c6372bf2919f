package chat

import (
	"context"
	"errors"
	"unicode/utf8"

	"quickchat/internal/app/store"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/protocol"
)

const (
	sendFailedHint  = "Please try again."
	sendTimeoutHint = "The server took too long to respond."
)

// Send validates, persists and fans out one message from c. It runs on c's read goroutine, so
// messages from a single connection are persisted in the order they were received.
func (h *Hub) Send(c *Conn, p protocol.SendPayload) {
	if p.FromUserID == "" || p.ToUserID == "" {
		c.logger.Debug().Msg("Dropping message without both participants.")
		return
	}

	content := store.Content{Text: p.Text, ImageURL: p.ImageURL}
	if content.Empty() {
		c.logger.Debug().Msg("Dropping empty message.")
		return
	}

	if n := utf8.RuneCountInString(p.ImageURL); n > protocol.MaxImageURLLength {
		c.logger.Info().Int("image_length", n).Msg("Rejecting oversized image.")
		h.sendError(c, errs.NewError(errs.ErrImageTooLarge))
		return
	}

	msg, err := h.persist(p.FromUserID, p.ToUserID, content)
	if err != nil {
		classified := classifySendError(err, p.ImageURL != "")
		c.logger.Error().
			Err(err).
			Str("from_user_id", p.FromUserID).
			Str("to_user_id", p.ToUserID).
			Int("code", classified.Code).
			Msg("Failed to persist message.")
		h.sendError(c, classified)
		return
	}

	frame, err := protocol.Encode(protocol.EventMessageNew, protocol.NewMessagePayload{
		Message:    msg,
		ReceiverID: p.ToUserID,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to encode message:new.")
		return
	}

	h.Deliver(frame, p.FromUserID, p.ToUserID)
}

func (h *Hub) persist(from, to string, content store.Content) (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(h.ctx, persistTimeout)
	defer cancel()

	conversationID, err := h.store.FindOrCreateConversation(ctx, from, to)
	if err != nil {
		return protocol.Message{}, err
	}

	return h.store.AppendMessage(ctx, conversationID, from, content)
}

// classifySendError maps a persistence failure to the error shown to the sender.
func classifySendError(err error, hasImage bool) *errs.CustomError {
	switch {
	case errors.Is(err, store.ErrValueTooLong):
		if hasImage {
			return errs.NewError(errs.ErrImageTooLarge)
		}
		return errs.NewError(errs.ErrMessageContentTooLong)
	case errors.Is(err, store.ErrInvalidReference):
		return errs.NewError(errs.ErrInvalidParticipants)
	case errors.Is(err, store.ErrSchemaMismatch):
		return errs.NewError(errs.ErrSchemaOutOfSync)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.NewError(errs.ErrMessageSendFailed, sendTimeoutHint)
	default:
		return errs.NewError(errs.ErrMessageSendFailed, sendFailedHint)
	}
}

func (h *Hub) sendError(c *Conn, customErr *errs.CustomError) {
	frame, err := protocol.Encode(protocol.EventMessageError, protocol.ErrorPayload{
		Error: customErr.Message,
		Code:  customErr.Code,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode message:error.")
		return
	}
	h.Unicast(c, frame)
}
