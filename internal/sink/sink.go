package sink

import (
	"context"
	"errors"
	"io"
)

// ErrConnection оборачивает ошибки установления соединения с БД, брокером или хранилищем.
var ErrConnection = errors.New("sink: connection failure")

// Loader потребляет поток показаний: читает r до io.EOF (или до ошибки
// генератора, которую r возвращает вместо EOF) и возвращает число принятых строк.
type Loader interface {
	Load(ctx context.Context, r io.Reader) (int64, error)
	Close()
}
