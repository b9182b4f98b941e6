package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DatasetRow 数据集中的一行原始记录
type DatasetRow struct {
	Line     int    `json:"line"`
	SoilType string `json:"soil_type"`
	Season   string `json:"season"`
	State    string `json:"state"`
	Crop     string `json:"crop"`
}

func (r *DatasetRow) fields() []struct {
	name  string
	value *string
} {
	return []struct {
		name  string
		value *string
	}{
		{ColumnSoilType, &r.SoilType},
		{ColumnSeason, &r.Season},
		{ColumnState, &r.State},
		{ColumnCrop, &r.Crop},
	}
}

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(*DatasetRow) (*DatasetRow, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Line      int       `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

func (i QualityIssue) Error() string {
	return fmt.Sprintf("line %d: %s: %s", i.Line, i.Type, i.Message)
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner 创建数据清洗器，带默认规则
func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{
		stats: CleaningStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(NewEncodingValidationRule())
	cleaner.AddRule(NewTrimSpaceRule())
	cleaner.AddRule(NewRequiredFieldsRule())
	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean 清洗数据。rows 中被拒绝的行不会出现在结果里，对应问题在 issues 中返回。
func (dc *DataCleaner) Clean(rows []*DatasetRow) ([]*DatasetRow, []QualityIssue) {
	var cleaned []*DatasetRow
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for _, row := range rows {
		dc.stats.TotalProcessed++
		original := *row
		current := row
		rejected := false

		for _, rule := range dc.rules {
			next, err := rule.Apply(current)
			if err != nil {
				issues = append(issues, QualityIssue{
					Type:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Line:      row.Line,
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			if next != nil {
				current = next
			}
		}

		if rejected {
			dc.stats.Rejected++
			continue
		}
		if *current != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, current)
	}

	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// ============ 清洗规则实现 ============

// EncodingValidationRule 拒绝解码后仍不是合法 UTF-8 的字段，通常说明 encoding 配置错误
type EncodingValidationRule struct{}

func NewEncodingValidationRule() *EncodingValidationRule {
	return &EncodingValidationRule{}
}

func (r *EncodingValidationRule) Name() string {
	return "encoding_validation"
}

func (r *EncodingValidationRule) Apply(row *DatasetRow) (*DatasetRow, error) {
	for _, f := range row.fields() {
		if !utf8.ValidString(*f.value) {
			return nil, fmt.Errorf("column %s is not valid UTF-8, check the dataset encoding", f.name)
		}
	}
	return row, nil
}

// TrimSpaceRule 去掉字段首尾空白
type TrimSpaceRule struct{}

func NewTrimSpaceRule() *TrimSpaceRule {
	return &TrimSpaceRule{}
}

func (r *TrimSpaceRule) Name() string {
	return "trim_space"
}

func (r *TrimSpaceRule) Apply(row *DatasetRow) (*DatasetRow, error) {
	trimmed := *row
	for _, f := range trimmed.fields() {
		*f.value = strings.TrimSpace(*f.value)
	}
	return &trimmed, nil
}

// RequiredFieldsRule 所有字段必须非空
type RequiredFieldsRule struct{}

func NewRequiredFieldsRule() *RequiredFieldsRule {
	return &RequiredFieldsRule{}
}

func (r *RequiredFieldsRule) Name() string {
	return "required_fields"
}

func (r *RequiredFieldsRule) Apply(row *DatasetRow) (*DatasetRow, error) {
	var missing []string
	for _, f := range row.fields() {
		if *f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return row, nil
}
