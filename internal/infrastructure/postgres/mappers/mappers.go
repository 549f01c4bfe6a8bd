package mappers

import (
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/models"
	"gorm.io/datatypes"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ToGORMLedgerEntry(e domain.LedgerEntry) models.LedgerEntryModel {
	return models.LedgerEntryModel{
		DealID:         nullable(e.DealID),
		AccountID:      string(e.AccountID),
		EntryType:      string(e.EntryType),
		DebitNano:      int64(e.DebitNano),
		CreditNano:     int64(e.CreditNano),
		IdempotencyKey: e.IdempotencyKey,
		TxRef:          e.TxRef,
		Description:    e.Description,
		CreatedAt:      e.CreatedAt,
	}
}

func ToDomainLedgerEntry(m models.LedgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             m.ID,
		DealID:         deref(m.DealID),
		AccountID:      domain.AccountID(m.AccountID),
		EntryType:      domain.EntryType(m.EntryType),
		DebitNano:      domain.Nano(m.DebitNano),
		CreditNano:     domain.Nano(m.CreditNano),
		IdempotencyKey: m.IdempotencyKey,
		TxRef:          m.TxRef,
		Description:    m.Description,
		CreatedAt:      m.CreatedAt,
	}
}

func ToDomainLedgerEntries(ms []models.LedgerEntryModel) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToDomainLedgerEntry(m))
	}
	return out
}

func ToDomainBalance(m models.AccountBalanceModel) domain.AccountBalance {
	return domain.AccountBalance{
		AccountID:   domain.AccountID(m.AccountID),
		BalanceNano: domain.Nano(m.BalanceNano),
		UpdatedAt:   m.UpdatedAt,
	}
}

func ToGORMDeal(d *domain.Deal) *models.DealModel {
	return &models.DealModel{
		ID:                 d.ID,
		Status:             string(d.Status),
		Version:            d.Version,
		AdvertiserID:       d.AdvertiserID,
		OwnerID:            d.OwnerID,
		ChannelID:          d.ChannelID,
		AmountNano:         int64(d.AmountNano),
		CommissionRateBp:   d.CommissionRateBp,
		DepositAddress:     d.DepositAddress,
		SubwalletID:        d.SubwalletID,
		PublishedMessageID: d.PublishedMessageID,
		ContentHash:        d.ContentHash,
		StatusChangedAt:    d.StatusChangedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func ToDomainDeal(m *models.DealModel) *domain.Deal {
	return &domain.Deal{
		ID:                 m.ID,
		Status:             domain.DealStatus(m.Status),
		Version:            m.Version,
		AdvertiserID:       m.AdvertiserID,
		OwnerID:            m.OwnerID,
		ChannelID:          m.ChannelID,
		AmountNano:         domain.Nano(m.AmountNano),
		CommissionRateBp:   m.CommissionRateBp,
		DepositAddress:     m.DepositAddress,
		SubwalletID:        m.SubwalletID,
		PublishedMessageID: m.PublishedMessageID,
		ContentHash:        m.ContentHash,
		StatusChangedAt:    m.StatusChangedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func ToGORMDealEvent(e *domain.DealEventRecord) *models.DealEventModel {
	return &models.DealEventModel{
		DealID:     e.DealID,
		EventType:  e.EventType,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorID:    e.ActorID,
		ActorType:  string(e.ActorType),
		Payload:    datatypes.JSON(e.Payload),
		CreatedAt:  e.CreatedAt,
	}
}

func ToDomainDealEvent(m models.DealEventModel) domain.DealEventRecord {
	return domain.DealEventRecord{
		ID:         m.ID,
		DealID:     m.DealID,
		EventType:  m.EventType,
		FromStatus: domain.DealStatus(m.FromStatus),
		ToStatus:   domain.DealStatus(m.ToStatus),
		ActorID:    m.ActorID,
		ActorType:  domain.ActorType(m.ActorType),
		Payload:    []byte(m.Payload),
		CreatedAt:  m.CreatedAt,
	}
}

func ToGORMOutbox(e *domain.OutboxEntry) *models.OutboxModel {
	return &models.OutboxModel{
		ID:             e.ID,
		DealID:         nullable(e.DealID),
		IdempotencyKey: e.IdempotencyKey,
		Topic:          e.Topic,
		PartitionKey:   e.PartitionKey,
		Payload:        datatypes.JSON(e.Payload),
		Status:         string(e.Status),
		RetryCount:     e.RetryCount,
		Version:        e.Version,
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt,
		ClaimedAt:      e.ClaimedAt,
		ProcessedAt:    e.ProcessedAt,
	}
}

func ToDomainOutbox(m models.OutboxModel) domain.OutboxEntry {
	return domain.OutboxEntry{
		ID:             m.ID,
		DealID:         deref(m.DealID),
		IdempotencyKey: m.IdempotencyKey,
		Topic:          m.Topic,
		PartitionKey:   m.PartitionKey,
		Payload:        []byte(m.Payload),
		Status:         domain.OutboxStatus(m.Status),
		RetryCount:     m.RetryCount,
		Version:        m.Version,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		ClaimedAt:      m.ClaimedAt,
		ProcessedAt:    m.ProcessedAt,
	}
}

func ToGORMTonTransaction(t *domain.TonTransaction) *models.TonTransactionModel {
	return &models.TonTransactionModel{
		ID:            t.ID,
		DealID:        t.DealID,
		Direction:     string(t.Direction),
		Address:       t.Address,
		SubwalletID:   t.SubwalletID,
		ExpectedNano:  int64(t.ExpectedNano),
		AmountNano:    int64(t.AmountNano),
		TxHash:        nullable(t.TxHash),
		FromAddress:   t.FromAddress,
		Confirmations: t.Confirmations,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		ConfirmedAt:   t.ConfirmedAt,
	}
}

func ToDomainTonTransaction(m *models.TonTransactionModel) *domain.TonTransaction {
	return &domain.TonTransaction{
		ID:            m.ID,
		DealID:        m.DealID,
		Direction:     domain.TonTxDirection(m.Direction),
		Address:       m.Address,
		SubwalletID:   m.SubwalletID,
		ExpectedNano:  domain.Nano(m.ExpectedNano),
		AmountNano:    domain.Nano(m.AmountNano),
		TxHash:        deref(m.TxHash),
		FromAddress:   m.FromAddress,
		Confirmations: m.Confirmations,
		Status:        domain.TonTxStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		ConfirmedAt:   m.ConfirmedAt,
	}
}
