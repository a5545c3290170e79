package xerr

const (
	SERVER_COMMON_ERROR = 100001
	REQUEST_PARAM_ERROR = 100002
	CONFIG_ERROR        = 100003
	DB_ERROR            = 100004

	// 执行期错误：只影响单个任务描述
	SOURCE_MISSING = 200001 // 源文件不存在或不可读
	WRITE_FAILURE  = 200002 // 目标文件不可写
	DIR_NOT_EMPTY  = 200003 // 目标目录中残留其它文件，清理时仅告警

	// 生成期错误
	INVALID_TOPICS = 300001
	UNKNOWN_FAMILY = 300002
	INVALID_GRAPH  = 300003
)

var codeText = map[int]string{
	SERVER_COMMON_ERROR: "server error",
	REQUEST_PARAM_ERROR: "bad request",
	CONFIG_ERROR:        "config error",
	DB_ERROR:            "db error",
	SOURCE_MISSING:      "source missing",
	WRITE_FAILURE:       "write failure",
	DIR_NOT_EMPTY:       "directory not empty",
	INVALID_TOPICS:      "invalid topics",
	UNKNOWN_FAMILY:      "unknown task family",
	INVALID_GRAPH:       "invalid task graph",
}

// Text 返回错误码的默认描述
func Text(code int) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return "unknown error"
}
