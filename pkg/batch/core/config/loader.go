package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadConfig builds the configuration for a run.
//
// The sources are applied in order: defaults from NewConfig, the embedded YAML
// (after ${VAR} expansion), then environment variables named after the yaml tags
// (for example ICONIUM_JOB_CHUNK_SIZE or SURFIN_ADAPTER_DATABASE_WORKLOAD_HOST).
// A .env file is loaded into the environment first when present.
//
// Parameters:
//
//	envFilePath: The path to the .env file. Empty means ".env" in the working directory.
//	embeddedConfig: The embedded configuration bytes.
//
// Returns:
//
//	The loaded Config, or a BatchError if the YAML or an environment value cannot be parsed.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}

	cfg := NewConfig()
	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

// validate checks the job parameters that the pipeline relies on.
func validate(cfg *Config) error {
	job := cfg.Iconium.Job
	if job.ChunkSize <= 0 {
		return fmt.Errorf("iconium.job.chunk_size must be positive, got %d", job.ChunkSize)
	}
	if job.SkipLimit < 0 {
		return fmt.Errorf("iconium.job.skip_limit must not be negative, got %d", job.SkipLimit)
	}
	if job.CacheSize <= 0 {
		return fmt.Errorf("iconium.job.cache_size must be positive, got %d", job.CacheSize)
	}
	for _, name := range job.SkippableExceptions {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("iconium.job.skippable_exceptions references unknown error kind '%s'", name)
		}
	}
	return nil
}

// mergeConfig copies every non-zero value of source into dest.
func mergeConfig(dest, source *Config) {
	mergeSurfinConfig(&dest.Surfin, &source.Surfin)
	mergeJobConfig(&dest.Iconium.Job, &source.Iconium.Job)
}

func mergeSurfinConfig(dest, source *SurfinConfig) {
	if source.System.Timezone != "" {
		dest.System.Timezone = source.System.Timezone
	}
	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}
	if source.System.Logging.Format != "" {
		dest.System.Logging.Format = source.System.Logging.Format
	}
	if source.System.Logging.SQLLevel != "" {
		dest.System.Logging.SQLLevel = source.System.Logging.SQLLevel
	}

	infra := &source.Infrastructure
	if infra.CheckpointDBRef != "" {
		dest.Infrastructure.CheckpointDBRef = infra.CheckpointDBRef
	}
	if infra.Metrics.Enabled {
		dest.Infrastructure.Metrics.Enabled = true
	}
	if infra.Metrics.PushgatewayURL != "" {
		dest.Infrastructure.Metrics.PushgatewayURL = infra.Metrics.PushgatewayURL
	}
	if infra.Tracing.Exporter != "" {
		dest.Infrastructure.Tracing.Exporter = infra.Tracing.Exporter
	}
	if infra.Tracing.Endpoint != "" {
		dest.Infrastructure.Tracing.Endpoint = infra.Tracing.Endpoint
	}
	if infra.Tracing.Insecure {
		dest.Infrastructure.Tracing.Insecure = true
	}
	if infra.Tracing.ServiceName != "" {
		dest.Infrastructure.Tracing.ServiceName = infra.Tracing.ServiceName
	}

	if source.AdapterConfigs != nil {
		if dest.AdapterConfigs == nil {
			dest.AdapterConfigs = make(map[string]interface{})
		}
		for key, value := range source.AdapterConfigs {
			dest.AdapterConfigs[key] = value
		}
	}
}

func mergeJobConfig(dest, source *JobConfig) {
	if source.Name != "" {
		dest.Name = source.Name
	}
	if source.Input != "" {
		dest.Input = source.Input
	}
	if source.SkipFile != "" {
		dest.SkipFile = source.SkipFile
	}
	if source.ChunkSize != 0 {
		dest.ChunkSize = source.ChunkSize
	}
	if source.SkipLimit != 0 {
		dest.SkipLimit = source.SkipLimit
	}
	if source.SkippableExceptions != nil {
		dest.SkippableExceptions = source.SkippableExceptions
	}
	if source.CacheSize != 0 {
		dest.CacheSize = source.CacheSize
	}
	if source.Restart {
		dest.Restart = true
	}
	if source.AutoMigrate {
		dest.AutoMigrate = true
	}
	if source.WorkloadDBRef != "" {
		dest.WorkloadDBRef = source.WorkloadDBRef
	}
	if source.AuthorityDBRef != "" {
		dest.AuthorityDBRef = source.AuthorityDBRef
	}
	if source.AuthoritySchema != "" {
		dest.AuthoritySchema = source.AuthoritySchema
	}
	if source.StorageRef != "" {
		dest.StorageRef = source.StorageRef
	}
}

// loadStructFromEnv recursively loads values into a struct from environment variables.
// The variable name is the upper-cased path of yaml tags joined by underscores.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String:
			loadAdapterMapFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadAdapterMapFromEnv overrides entries of a map[string]interface{} holding
// named connections per adapter kind.
//
// Example: SURFIN_ADAPTER_DATABASE_WORKLOAD_HOST=db sets
// AdapterConfigs["database"]["workload"]["host"] = "db". Values are kept as strings;
// the adapters decode them with weak typing.
func loadAdapterMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.Type().Elem().Kind() != reflect.Interface {
		return
	}
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		path := strings.SplitN(strings.ToLower(parts[0]), "_", 3)
		if len(path) != 3 {
			continue
		}
		kind, name, key := path[0], path[1], path[2]

		kinds := asMap(mapField.MapIndex(reflect.ValueOf(kind)))
		connection, _ := kinds[name].(map[string]interface{})
		if connection == nil {
			connection = make(map[string]interface{})
		}
		connection[key] = parts[1]
		kinds[name] = connection
		mapField.SetMapIndex(reflect.ValueOf(kind), reflect.ValueOf(kinds))
	}
}

func asMap(v reflect.Value) map[string]interface{} {
	if v.IsValid() {
		if m, ok := v.Interface().(map[string]interface{}); ok {
			return m
		}
	}
	return make(map[string]interface{})
}

// setField sets a field from its string representation.
// Slices of strings are comma separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
