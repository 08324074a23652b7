package routing

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Classifier 分类服务接口
// 可以是外部决策服务,也可以是内置策略
type Classifier interface {
	Classify(ctx context.Context, allegationType string, severity Severity) (Classification, error)
}

// PolicyClassifier 将内置策略包装为 Classifier
type PolicyClassifier struct {
	Policy *ClassificationPolicy
}

// Classify 使用内置策略分类,不会失败
func (c PolicyClassifier) Classify(_ context.Context, allegationType string, severity Severity) (Classification, error) {
	return c.Policy.Classify(allegationType, severity), nil
}

// FallbackClassifier 优先调用决策服务,失败时回退到内置策略
type FallbackClassifier struct {
	primary  Classifier
	fallback *ClassificationPolicy
	logger   *logrus.Logger
}

// NewFallbackClassifier 创建带回退的分类器,primary 为 nil 时只使用内置策略
func NewFallbackClassifier(primary Classifier, fallback *ClassificationPolicy, logger *logrus.Logger) *FallbackClassifier {
	if fallback == nil {
		fallback = NewClassificationPolicy()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FallbackClassifier{primary: primary, fallback: fallback, logger: logger}
}

// Classify 分类
func (c *FallbackClassifier) Classify(ctx context.Context, allegationType string, severity Severity) (Classification, error) {
	if c.primary != nil {
		result, err := c.primary.Classify(ctx, allegationType, severity)
		if err == nil {
			return result, nil
		}
		c.logger.WithError(err).WithField("allegation_type", allegationType).
			Warn("decision service unavailable, using built-in classification policy")
	}
	return c.fallback.Classify(allegationType, severity), nil
}
