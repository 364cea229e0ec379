package source

import (
	"context"
	"fmt"
	"io"

	"navcog-poi/model"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter S3 客户端中用到的部分, 测试时可替换
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config S3 数据源参数, Endpoint 非空时可接 MinIO 等兼容服务
type S3Config struct {
	Region          string
	Bucket          string
	Key             string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3 从对象存储读取一个 GeoJSON 对象
type S3 struct {
	Client ObjectGetter
	Bucket string
	Key    string
	Radius float64
}

// NewS3 按配置创建 S3 数据源
func NewS3(ctx context.Context, cfg S3Config, radius float64) (*S3, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("s3 数据源需要 bucket 和 key")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{Client: client, Bucket: cfg.Bucket, Key: cfg.Key, Radius: radius}, nil
}

func (s *S3) load(ctx context.Context) (*Dataset, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.Bucket), Key: aws.String(s.Key)})
	if err != nil {
		return nil, fmt.Errorf("读取 s3://%s/%s 失败: %w", s.Bucket, s.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("读取对象内容失败: %w", err)
	}
	return Decode(data)
}

// FetchPOIs 实现 registry.DataSource
func (s *S3) FetchPOIs(ctx context.Context, center model.Location) ([]model.POI, error) {
	ds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return FilterWithin(ds.POIs, center, s.Radius), nil
}

// FetchEdges 实现 EdgeSource
func (s *S3) FetchEdges(ctx context.Context) ([]model.Edge, error) {
	ds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Edges, nil
}
