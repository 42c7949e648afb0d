package connectors

import (
	"log/slog"
	"strings"
)

type FetchService struct {
	connector    MailConnector
	store        *BundleStore
	supplierFrom string
	log          *slog.Logger
}

type FetchResult struct {
	Fetched  int
	Matched  int
	Bundles  int
	Created  int
	Provider string
}

func NewFetchService(connector MailConnector, store *BundleStore, supplierFrom string, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{
		connector:    connector,
		store:        store,
		supplierFrom: strings.ToLower(strings.TrimSpace(supplierFrom)),
		log:          logger,
	}
}

// FetchAndStore pulls up to max messages from label and registers the PDF
// bundles attached to the ones sent by the supplier.
func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		result.Provider = msg.Provider
		if s.supplierFrom != "" && !strings.Contains(strings.ToLower(msg.From), s.supplierFrom) {
			s.log.Debug("skipping message from other sender", "message_id", msg.MessageID, "from", msg.From)
			continue
		}
		result.Matched++

		stored, err := s.store.StoreMessage(msg)
		if err != nil {
			return result, err
		}
		if len(stored.Bundles) == 0 {
			s.log.Info("message has no pdf attachment", "message_id", msg.MessageID, "subject", msg.Subject)
		}
		result.Bundles += len(stored.Bundles)
		result.Created += stored.Created
	}

	return result, nil
}
