package s3

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pv/sensor-datagen-go/internal/sink"
)

// ErrDuplicateKey возвращается, если два окна получили одно имя объекта:
// повторная выгрузка перезаписала бы предыдущую.
var ErrDuplicateKey = errors.New("s3: object key already uploaded")

type Config struct {
	Bucket string
	Prefix string
	// Region и Endpoint необязательны; по умолчанию берутся из окружения AWS.
	Region   string
	Endpoint string
	// PathStyle нужен для MinIO и подобных S3-совместимых хранилищ.
	PathStyle bool
	TempDir   string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Uploader пишет показания во временный файл на каждое окно (час) и выгружает
// его в <prefix>/<окно>.json при переключении на следующее окно и в Close.
type Uploader struct {
	client  uploader
	bucket  string
	prefix  string
	tempDir string

	current *window
	files   int
	keys    map[string]struct{}
}

type window struct {
	key  string
	file *os.File
	out  *bufio.Writer
}

func (w *window) Write(p []byte) (int, error) { return w.out.Write(p) }

func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is empty")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: s3: load aws config: %w", sink.ErrConnection, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newUploader(manager.NewUploader(client), cfg), nil
}

func newUploader(client uploader, cfg Config) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.TrimSuffix(cfg.Prefix, "/"),
		tempDir: cfg.TempDir,
		keys:    make(map[string]struct{}),
	}
}

// CheckRotation проверяет окно переключения: имена объектов часовые, поэтому
// окно должно быть кратно часу. 0 означает один объект на весь диапазон.
func CheckRotation(every time.Duration) error {
	if every < 0 || every%time.Hour != 0 {
		return fmt.Errorf("s3: rotation window %s is not a whole number of hours", every)
	}
	return nil
}

// ObjectName возвращает имя файла для окна, содержащего ts: час в UTC без
// минут и секунд, например 2024-06-01T10.json.
func ObjectName(ts int64) string {
	return time.UnixMilli(ts).UTC().Truncate(time.Hour).Format("2006-01-02T15") + ".json"
}

// Key возвращает полный ключ объекта для окна, содержащего ts.
func (u *Uploader) Key(ts int64) string {
	if u.prefix == "" {
		return ObjectName(ts)
	}
	return path.Join(u.prefix, ObjectName(ts))
}

// Rotate возвращает функцию переключения для stream.Run: выгружает текущее
// окно и открывает временный файл для окна, начинающегося с ts.
func (u *Uploader) Rotate(ctx context.Context) func(current io.Writer, ts int64) (io.Writer, error) {
	return func(_ io.Writer, ts int64) (io.Writer, error) {
		if err := u.flushCurrent(ctx); err != nil {
			return nil, err
		}
		key := u.Key(ts)
		if _, dup := u.keys[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		u.keys[key] = struct{}{}
		f, err := os.CreateTemp(u.tempDir, strings.ReplaceAll(path.Base(key), ":", "")+"-*.tmp")
		if err != nil {
			return nil, fmt.Errorf("s3: create temp file: %w", err)
		}
		log.Printf("s3: creating temporary file: %s", f.Name())
		u.current = &window{key: key, file: f, out: bufio.NewWriterSize(f, 256<<10)}
		return u.current, nil
	}
}

// Close выгружает последнее окно.
func (u *Uploader) Close(ctx context.Context) error {
	return u.flushCurrent(ctx)
}

// Uploaded возвращает число выгруженных объектов.
func (u *Uploader) Uploaded() int { return u.files }

// Discard удаляет временный файл незавершённого окна без выгрузки.
func (u *Uploader) Discard() {
	if u.current == nil {
		return
	}
	u.current.file.Close()
	os.Remove(u.current.file.Name())
	u.current = nil
}

func (u *Uploader) flushCurrent(ctx context.Context) error {
	w := u.current
	if w == nil {
		return nil
	}
	u.current = nil
	defer os.Remove(w.file.Name())
	defer w.file.Close()

	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("s3: flush %s: %w", w.file.Name(), err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("s3: rewind %s: %w", w.file.Name(), err)
	}

	log.Printf("s3: writing file to s3://%s/%s", u.bucket, w.key)
	_, err := u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(w.key),
		Body:        w.file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", w.key, err)
	}
	u.files++
	return nil
}
