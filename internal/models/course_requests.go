package models

// CreateCourseRequest creates a catalog entry. The creating faculty becomes
// the owner; the owner is not part of the payload.
type CreateCourseRequest struct {
	Code        string   `json:"code" validate:"required,min=2,max=16"`
	Title       string   `json:"title" validate:"required,min=3,max=200"`
	Description string   `json:"description"`
	Credits     int      `json:"credits" validate:"required,min=1,max=6"`
	Department  string   `json:"department" validate:"required"`
	Semester    string   `json:"semester" validate:"required"`
	Capacity    int      `json:"capacity" validate:"omitempty,min=1,max=500"`
	Schedule    Schedule `json:"schedule"`
}

// UpdateCourseRequest mutates the descriptive fields of a course. Only the
// fields present in the payload are written; ownership, roster and active
// status are never updatable through this request.
type UpdateCourseRequest struct {
	Code        *string   `json:"code" validate:"omitempty,min=2,max=16"`
	Title       *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string   `json:"description"`
	Credits     *int      `json:"credits" validate:"omitempty,min=1,max=6"`
	Department  *string   `json:"department"`
	Semester    *string   `json:"semester"`
	Capacity    *int      `json:"capacity" validate:"omitempty,min=1,max=500"`
	Schedule    *Schedule `json:"schedule"`
}

// AddResourceRequest appends a material entry to a course.
type AddResourceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	FileURL     string `json:"file_url" validate:"required"`
	FileType    string `json:"file_type"`
}

// CourseListResult bundles a catalog page with its aggregates.
type CourseListResult struct {
	Courses         []CourseDetail   `json:"courses"`
	Pagination      Pagination       `json:"pagination"`
	DepartmentStats []DepartmentStat `json:"department_stats,omitempty"`
	CacheHit        bool             `json:"-"`
}

// CourseDetailResult bundles a course with its roster stats, materials and
// related catalog entries.
type CourseDetailResult struct {
	Course     CourseDetail           `json:"course"`
	Enrollment EnrollmentStats        `json:"enrollment"`
	Resources  []CourseResourceDetail `json:"resources"`
	Related    []CourseDetail         `json:"related_courses"`
}
