package cache

import "salesanalysis/backend/internal/domain"

const (
	ReferenceKey = "customerPhonesData"
	MasterKey    = "sfa_master_cache"

	PerformanceKey    = "sfa_performance_cache"
	PerformanceRawKey = "sfa_performance_raw_cache"
)

func DatasetKey(mode domain.Mode) string {
	return "salesAnalysisData_" + string(mode)
}

func TimestampKey(mode domain.Mode) string {
	return "salesAnalysisCacheTime_" + string(mode)
}
