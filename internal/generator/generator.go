package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-faster/city"
	"github.com/google/uuid"

	"github.com/pv/sensor-datagen-go/internal/reading"
)

// Generator выдаёт показания одного датчика с нормальным распределением
// вокруг mean. Источник случайных чисел принадлежит только этому генератору.
type Generator struct {
	deviceID string
	mean     float64
	stddev   float64
	rnd      *rand.Rand
}

// New создаёт генератор с собственным источником случайных чисел.
func New(deviceID string, mean, stddev float64, src rand.Source) *Generator {
	return &Generator{
		deviceID: deviceID,
		mean:     mean,
		stddev:   stddev,
		rnd:      rand.New(src),
	}
}

func (g *Generator) DeviceID() string { return g.deviceID }

// Next возвращает показание ровно с переданным timestamp.
func (g *Generator) Next(timestamp int64) reading.Reading {
	temperature := g.mean + g.rnd.NormFloat64()*g.stddev
	return reading.Reading{DeviceID: g.deviceID, Timestamp: timestamp, Temperature: temperature}
}

// NextJittered сдвигает timestamp на round(N(0,1)*jitter) мс: в реальности
// датчики не отчитываются строго по сетке.
func (g *Generator) NextJittered(timestamp, jitter int64) reading.Reading {
	offset := int64(math.Round(g.rnd.NormFloat64() * float64(jitter)))
	return g.Next(timestamp + offset)
}

// CreateGenerators создаёт count генераторов со случайными UUID (без дефисов).
func CreateGenerators(count int, mean, stddev float64) []*Generator {
	result := make([]*Generator, 0, max(count, 0))
	base := time.Now().UnixNano()
	for i := 0; i < count; i++ {
		deviceID := stripDashes(uuid.New())
		result = append(result, New(deviceID, mean, stddev, rand.NewSource(deviceSeed(base, deviceID))))
	}
	return result
}

// CreateSeeded работает как CreateGenerators, но детерминированно: при одинаковом
// seed получаются те же идентификаторы и те же ряды значений.
func CreateSeeded(count int, mean, stddev float64, seed int64) []*Generator {
	master := rand.New(rand.NewSource(seed))
	result := make([]*Generator, 0, max(count, 0))
	for i := 0; i < count; i++ {
		id, err := uuid.NewRandomFromReader(master)
		if err != nil {
			// math/rand.Rand.Read не возвращает ошибок
			panic(err)
		}
		deviceID := stripDashes(id)
		result = append(result, New(deviceID, mean, stddev, rand.NewSource(deviceSeed(seed, deviceID))))
	}
	return result
}

// DeviceIDs возвращает идентификаторы в порядке регистрации генераторов.
func DeviceIDs(gens []*Generator) []string {
	ids := make([]string, 0, len(gens))
	for _, g := range gens {
		ids = append(ids, g.deviceID)
	}
	return ids
}

func stripDashes(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// deviceSeed смешивает общий seed с cityhash64 идентификатора устройства.
func deviceSeed(seed int64, deviceID string) int64 {
	return seed ^ int64(city.Hash64([]byte(deviceID)))
}
