package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FlagName: флаг, через который передаётся путь к YAML-файлу.
const FlagName = "config-yaml"

// keyToFlag отображает вложенные ключи YAML (через точку) на имена флагов.
// Ключ верхнего уровня без записи в таблице считается именем флага.
var keyToFlag = map[string]string{
	"generator.mean":         "mean",
	"generator.stddev":       "stddev",
	"generator.seed":         "seed",
	"range.step":             "step",
	"range.interval":         "step",
	"range.jitter":           "jitter",
	"stream.jitter":          "jitter",
	"stream.rotate":          "rotate",
	"stream.rotate-every":    "rotate",
	"stream.log-interval":    "log-interval",
	"sink.batch-size":        "batch-size",
	"sink.create-table":      "create-table",
	"sink.qos":               "qos",
	"sink.maxlen":            "maxlen",
	"s3.region":              "region",
	"s3.endpoint":            "endpoint",
	"s3.path-style":          "path-style",
	"sqlite.wal":             "sqlite-wal",
	"sqlite.sync-off":        "sqlite-sync-off",
	"logging.file":           "log-file",
	"logging.debug":          "debug",
	"metrics.addr":           "metrics-addr",
	"metrics.address":        "metrics-addr",
	"server.metrics-addr":    "metrics-addr",
	"postgres.max-conns":     "max-conns",
	"mqtt.client-id":         "client-id",
	"redis.password":         "password",
	"redis.db":               "db",
	"output.batch-size":      "batch-size",
	"output.create-table":    "create-table",
	"output.metrics-address": "metrics-addr",
}

// FindYAML ищет --config-yaml среди аргументов до разбора флагов,
// чтобы значения из файла стали умолчаниями, а CLI их переопределял.
func FindYAML(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := strings.TrimLeft(args[i], "-")
		if strings.HasPrefix(arg, FlagName+"=") {
			return strings.TrimPrefix(arg, FlagName+"=")
		}
		if arg == FlagName && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// ApplyYAMLDefaults читает YAML-файл и выставляет найденные значения во флаги fs.
// Неизвестные ключи игнорируются: один файл может обслуживать несколько утилит.
func ApplyYAMLDefaults(fs *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	flat := flattenYAML(raw)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	// порядок важен, если два ключа указывают на один флаг
	sort.Strings(keys)
	for _, key := range keys {
		name := yamlKeyToFlag(key)
		if fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, formatFlagValue(flat[key])); err != nil {
			return fmt.Errorf("config: set flag %s from %s: %w", name, key, err)
		}
	}
	return nil
}

func flattenYAML(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range raw {
		flattenYAMLValue(key, value, out)
	}
	return out
}

func flattenYAMLValue(prefix string, value interface{}, out map[string]interface{}) {
	switch val := value.(type) {
	case map[string]interface{}:
		for k, v := range val {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAMLValue(next, v, out)
		}
	case map[interface{}]interface{}:
		for k, v := range val {
			keyStr := fmt.Sprintf("%v", k)
			next := keyStr
			if prefix != "" {
				next = prefix + "." + keyStr
			}
			flattenYAMLValue(next, v, out)
		}
	default:
		if prefix != "" {
			out[prefix] = value
		}
	}
}

func yamlKeyToFlag(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "-")
	if name, ok := keyToFlag[key]; ok {
		return name
	}
	return key
}

func formatFlagValue(value interface{}) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.String()
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatFlagValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", value)
	}
}

// WriteExample пишет пример конфигурации в path ("-": stdout).
func WriteExample(path string, stdout io.Writer) error {
	if path == "-" {
		_, err := io.WriteString(stdout, ExampleYAML)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(ExampleYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ExampleYAML: пример со всеми поддерживаемыми секциями.
const ExampleYAML = `# Умолчания для утилит генерации показаний. Флаги CLI имеют приоритет.

generator:
  mean: 68          # среднее значение температуры
  stddev: 0.01      # стандартное отклонение (populate-s3: 0.05)
  seed: 0           # 0 = недетерминированные id и значения

range:
  step: 1s          # шаг между timestamp
  jitter: 0s        # разброс timestamp (populate-s3: 10ms)

stream:
  rotate: 1h        # окно переключения sink (populate-s3)
  log_interval: 24h # как часто генератор пишет timestamp в лог

sink:
  batch_size: 10000
  create_table: true
  qos: 1            # publish-mqtt
  maxlen: 0         # publish-redis, 0 = без ограничения

s3:
  region: us-east-1
  endpoint: ""      # например http://localhost:9000 для MinIO
  path_style: false

sqlite:
  wal: true
  sync_off: true

logging:
  file: ""
  debug: false

metrics:
  addr: ""          # например :9464, пусто = без /metrics
`
