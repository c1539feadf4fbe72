package config

// MinioConfig configures the MinIO archive backend.
type MinioConfig struct {
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Endpoint   string `mapstructure:"endpoint"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket_name"`
}

func bindMinioEnv(b envBinder) {
	b.bind("archive.minio.access_key", "MINIO_ACCESS_KEY")
	b.bind("archive.minio.secret_key", "MINIO_SECRET_KEY")
	b.bind("archive.minio.endpoint", "MINIO_ENDPOINT")
	b.bind("archive.minio.use_ssl", "MINIO_USE_SSL")
	b.bind("archive.minio.region", "MINIO_REGION")
	b.bind("archive.minio.bucket_name", "MINIO_BUCKET_NAME")
}
