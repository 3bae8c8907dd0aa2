package services

import (
	"context"

	applog "bilancio/internal/log"
)

const webhookTypeTransactions = "TRANSACTIONS"

// update-type webhook codes that mean new or changed transaction data is
// available at the provider
var transactionUpdateCodes = map[string]bool{
	"INITIAL_UPDATE":       true,
	"HISTORICAL_UPDATE":    true,
	"DEFAULT_UPDATE":       true,
	"TRANSACTIONS_REMOVED": true,
}

// HandleWebhook reacts to a provider webhook delivery. Transaction update
// codes trigger a batch sync of all accounts; everything else is ignored.
func (p *SyncPipeline) HandleWebhook(ctx context.Context, webhookType, webhookCode, itemID string) error {
	if webhookType != webhookTypeTransactions || !transactionUpdateCodes[webhookCode] {
		p.log.DebugContext(ctx, "ignoring webhook",
			applog.FieldWebhookType, webhookType,
			applog.FieldWebhookCode, webhookCode,
			applog.FieldItemID, itemID)
		return nil
	}

	p.log.InfoContext(ctx, "transactions webhook received, starting batch sync",
		applog.FieldWebhookCode, webhookCode,
		applog.FieldItemID, itemID)

	_, err := p.SyncAll(ctx)
	return err
}
