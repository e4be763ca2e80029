package utils

import "os"

var (
	DB_FILE      = GetEnvOrDefault("DB_FILE", "eduskunta_data.sqlite")
	DATASET_NAME = GetEnvOrDefault("DATASET_NAME", "eduskunta_data")

	API_BASE_URL     = GetEnvOrDefault("API_BASE_URL", "https://avoindata.eduskunta.fi/api/v1")
	PER_PAGE         = GetEnvOrDefaultInt("PER_PAGE", 100)
	TABLES_FILE      = os.Getenv("TABLES_FILE")
	HTTP_TIMEOUT_SEC = GetEnvOrDefaultInt("HTTP_TIMEOUT_SEC", 30)
	HTTP_MAX_RETRIES = GetEnvOrDefaultInt("HTTP_MAX_RETRIES", 0)
	TLS_INSECURE     = os.Getenv("TLS_INSECURE") == "1"

	AWS_DEFAULT_REGION = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = GetEnvOrDefault("S3_BUCKET_NAME", "ekdb-dumps")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")
	S3_PREFIX      = GetEnvOrDefault("S3_PREFIX", "v1")
	RETENTION_DAYS = GetEnvOrDefaultInt("RETENTION_DAYS", 30)
	EXPORT_PARQUET = os.Getenv("EXPORT_PARQUET") == "1"

	HTTP_PORT      = GetEnvOrDefault("HTTP_PORT", "8080")
	MIRROR_FROM_S3 = os.Getenv("MIRROR_FROM_S3") == "1"
)
