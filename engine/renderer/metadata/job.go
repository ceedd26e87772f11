package metadata

/** Definition for the body of a job. */
type JobStart func() error

/** Definition for completion of a job. */
type JobOnComplete func()

/** Definition for failure of a job. */
type JobOnFail func(err error)

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * This means it matters little which job thread this job runs on.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job, such as decoding a streamed page.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/**
	 * @brief Recomputes per-instance transforms and bounds.
	 */
	JOB_TYPE_BOUNDS JobType = 0x08
)

/**
 * @brief Describes a job to be run on the task graph.
 */
type JobTask struct {
	/** @brief A debug name, used in logs. */
	Name string
	/** @brief The type of job. */
	JobType JobType
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure JobOnFail
}
