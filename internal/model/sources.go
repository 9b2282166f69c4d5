package model

// Source types link a transaction to what caused it. Refund and expire
// entries reference the original transaction id through SourceID, which is
// how the refund idempotency guard and the expiry reaper find prior work.
const (
	SourceGachaDraw   = "gacha_draw"
	SourceChatMessage = "chat_message"
	SourceAdminGrant  = "admin_grant"
	SourceWelcome     = "welcome_bonus"
	SourceRefundOf    = "refund_of"
	SourceExpireOf    = "expire_of"
)
