package stream

import (
	"errors"
	"io"
	"log"

	"github.com/pv/sensor-datagen-go/internal/reading"
)

var errConsumerClosed = errors.New("stream: consumer closed the pipe")

// PipeReader: читающий конец канала между горутиной-генератором и потребителем.
//
// Ёмкость канала ограничена буфером записи генератора (64 KiB): когда он полон,
// генератор блокируется, пока потребитель не вычитает данные; потребитель
// блокируется на пустом канале, пока генератор не закончит. Если генерация
// завершилась ошибкой, Read возвращает эту ошибку вместо io.EOF, а Wait: её же.
type PipeReader struct {
	pr   *io.PipeReader
	done chan struct{}
	err  error
}

// Pipe запускает Run в отдельной горутине и сразу возвращает читающий конец.
// logInterval (мс) задаёт, как часто генератор пишет в лог текущий timestamp.
func (s *Stream) Pipe(logInterval int64) *PipeReader {
	return startPipe(func(w io.Writer) error {
		return s.run(w, logInterval, func(current io.Writer, ts int64) (io.Writer, error) {
			log.Printf("stream: data timestamp: %s", reading.FormatInstant(ts))
			return current, nil
		}, false)
	})
}

func startPipe(produce func(io.Writer) error) *PipeReader {
	pr, pw := io.Pipe()
	p := &PipeReader{pr: pr, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		log.Printf("stream: generating readings")
		err := produce(pw)
		p.err = err
		// nil превращается в обычный io.EOF у читателя
		pw.CloseWithError(err)
		if err != nil {
			log.Printf("stream: producer failed: %v", err)
			return
		}
		log.Printf("stream: all readings generated")
	}()
	return p
}

func (p *PipeReader) Read(b []byte) (int, error) {
	return p.pr.Read(b)
}

// Wait блокируется до завершения генератора и возвращает результат Run.
func (p *PipeReader) Wait() error {
	<-p.done
	return p.err
}

// Close закрывает канал со стороны потребителя. Генератор получает ошибку
// записи на ближайшем сбросе буфера и завершается; Close дожидается этого.
func (p *PipeReader) Close() error {
	p.pr.CloseWithError(errConsumerClosed)
	<-p.done
	return nil
}
