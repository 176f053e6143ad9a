package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldEmbeddingProvider is the structured log field key for the embedding provider name.
	FieldEmbeddingProvider = "embedding_provider"
	// FieldEmbeddingModel is the structured log field key for the embedding model identifier.
	FieldEmbeddingModel = "embedding_model"
	// FieldStoreProvider is the structured log field key for the vector store backend.
	FieldStoreProvider = "store_provider"
	// FieldCollection is the structured log field key for the vector store collection.
	FieldCollection = "collection"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger.
// A nil logger is replaced with a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// EmbedderFields describes the embedding collaborator.
func EmbedderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldEmbeddingProvider, Value: provider},
		StringField{Key: FieldEmbeddingModel, Value: model},
	)
}

// StoreFields describes the vector store collaborator and the collection in use.
func StoreFields(provider, collection string) []zap.Field {
	return StringFields(
		StringField{Key: FieldStoreProvider, Value: provider},
		StringField{Key: FieldCollection, Value: collection},
	)
}
