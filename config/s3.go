package config

// S3Config configures the S3 archive backend. Endpoint is only set for
// S3-compatible services.
type S3Config struct {
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
}

func bindS3Env(b envBinder) {
	b.bind("archive.s3.bucket_name", "AWS_S3_BUCKET_NAME")
	b.bind("archive.s3.region", "AWS_REGION")
	b.bind("archive.s3.endpoint", "AWS_ENDPOINT")
	b.bind("archive.s3.access_key", "AWS_ACCESS_KEY")
	b.bind("archive.s3.secret_key", "AWS_SECRET_KEY")
}
