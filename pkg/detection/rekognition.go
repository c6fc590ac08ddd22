package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/model"
)

// Config holds the detection settings.
type Config struct {
	Bucket        string
	Prefix        string
	Inline        bool
	MinConfidence float64
	MaxLabels     int64
	Timeout       time.Duration
}

var _ Detector = (*RekognitionDetector)(nil)

// RekognitionDetector stages images in S3 and detects labels with Amazon
// Rekognition. When Config.Inline is set the bytes are sent directly in the
// DetectLabels request and S3 is not used.
type RekognitionDetector struct {
	cfg      Config
	uploader s3manageriface.UploaderAPI
	client   rekognitioniface.RekognitionAPI
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

// Option configures a RekognitionDetector.
type Option func(*RekognitionDetector)

// WithMetrics records detection outcomes and latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *RekognitionDetector) {
		d.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *RekognitionDetector) {
		d.log = log
	}
}

// NewRekognitionDetector builds the S3 uploader and Rekognition client from
// a shared AWS session.
func NewRekognitionDetector(sess client.ConfigProvider, cfg Config, opts ...Option) *RekognitionDetector {
	return NewRekognitionDetectorWithClients(
		s3manager.NewUploader(sess),
		rekognition.New(sess),
		cfg,
		opts...,
	)
}

// NewRekognitionDetectorWithClients creates a detector around existing
// clients.
func NewRekognitionDetectorWithClients(
	uploader s3manageriface.UploaderAPI,
	client rekognitioniface.RekognitionAPI,
	cfg Config,
	opts ...Option,
) *RekognitionDetector {
	d := &RekognitionDetector{
		cfg:      cfg,
		uploader: uploader,
		client:   client,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze implements Detector.
func (d *RekognitionDetector) Analyze(ctx context.Context, key string, data []byte) (model.LabelSet, error) {
	if len(data) == 0 {
		return nil, &DetectionError{Key: key, Message: ErrEmptyImage.Error(), Err: ErrEmptyImage}
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	image := &rekognition.Image{}
	if d.cfg.Inline {
		image.Bytes = data
	} else {
		objectKey := d.cfg.Prefix + key
		_, err := d.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(objectKey),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return nil, d.fail(ctx, key, "failed to stage image", err, start)
		}
		image.S3Object = &rekognition.S3Object{
			Bucket: aws.String(d.cfg.Bucket),
			Name:   aws.String(objectKey),
		}
	}

	input := &rekognition.DetectLabelsInput{
		Image:         image,
		MinConfidence: aws.Float64(d.cfg.MinConfidence),
	}
	if d.cfg.MaxLabels > 0 {
		input.MaxLabels = aws.Int64(d.cfg.MaxLabels)
	}

	output, err := d.client.DetectLabelsWithContext(ctx, input)
	if err != nil {
		return nil, d.fail(ctx, key, "failed to detect labels", err, start)
	}

	d.metrics.ObserveDetection(metrics.OutcomeSuccess, time.Since(start))
	labels := convertLabels(output.Labels)
	d.log.WithFields(logrus.Fields{
		"key":    key,
		"labels": len(labels),
	}).Debug("labels detected")
	return labels, nil
}

func (d *RekognitionDetector) fail(ctx context.Context, key, stage string, err error, start time.Time) error {
	outcome := metrics.OutcomeFailure
	message := stage + ": " + describe(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome = metrics.OutcomeTimeout
		message = fmt.Sprintf("%s: timed out after %s", stage, d.cfg.Timeout)
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	d.metrics.ObserveDetection(outcome, time.Since(start))
	d.log.WithError(err).WithField("key", key).Warn(stage)
	return &DetectionError{Key: key, Message: message, Err: err}
}

func describe(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() + ": " + aerr.Message()
	}
	return err.Error()
}

func convertLabels(in []*rekognition.Label) model.LabelSet {
	labels := make(model.LabelSet, 0, len(in))
	for _, l := range in {
		if l == nil {
			continue
		}
		label := model.Label{
			Name:       aws.StringValue(l.Name),
			Confidence: aws.Float64Value(l.Confidence),
			Instances:  make([]model.Instance, 0, len(l.Instances)),
			Parents:    make([]string, 0, len(l.Parents)),
		}
		for _, inst := range l.Instances {
			if inst == nil {
				continue
			}
			instance := model.Instance{Confidence: aws.Float64Value(inst.Confidence)}
			if box := inst.BoundingBox; box != nil {
				instance.BoundingBox = &model.BoundingBox{
					Width:  aws.Float64Value(box.Width),
					Height: aws.Float64Value(box.Height),
					Left:   aws.Float64Value(box.Left),
					Top:    aws.Float64Value(box.Top),
				}
			}
			label.Instances = append(label.Instances, instance)
		}
		for _, p := range l.Parents {
			if p != nil {
				label.Parents = append(label.Parents, aws.StringValue(p.Name))
			}
		}
		labels = append(labels, label)
	}
	return labels
}
