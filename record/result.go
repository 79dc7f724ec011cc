package record

import (
	"regexp"
	"sort"
)

var (
	datePattern    = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	creditsPattern = regexp.MustCompile(`:\s*(\d+)`)
)

type StudentResult struct {
	YearID      string `json:"year_id"`
	ExamDate    string `json:"exam_date"`
	Sem         string `json:"sem"`
	ResultDate  string `json:"result_date"`
	RegNo       string `json:"reg_no"`
	FullName    string `json:"full_name"`
	DegreeID    string `json:"degree_id"`
	DegreeName  string `json:"degree_name"`
	CollegeID   string `json:"coll_id"`
	CollegeName string `json:"coll_name"`
	MCNo        string `json:"mc_no"`
	Status      string `json:"status"`
}

// DecodeStudentResults decodes the list of published results.
// The envelope must carry error_code 0 and a data list. Items without an
// exam identifier or registration number are dropped; no items is a failure.
func DecodeStudentResults(raw []byte) ([]StudentResult, bool) {
	m, ok := parseObject(raw)
	if !ok || opt(m, "error_code") != "0" {
		return nil, false
	}
	items, ok := list(m, "data")
	if !ok {
		return nil, false
	}
	results := make([]StudentResult, 0, len(items))
	for _, item := range items {
		if r, ok := decodeStudentResult(item); ok {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

func decodeStudentResult(v any) (StudentResult, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return StudentResult{}, false
	}
	ids, ok := required(m, "year", "regno")
	if !ok {
		return StudentResult{}, false
	}
	collID, collName := SplitIDName(opt(m, "college"))
	degID, degName := SplitIDName(opt(m, "degree"))
	return StudentResult{
		YearID:      ids[0],
		ExamDate:    opt(m, "examdate"),
		Sem:         opt(m, "examname"),
		ResultDate:  opt(m, "resultdate"),
		RegNo:       ids[1],
		FullName:    opt(m, "name"),
		DegreeID:    degID,
		DegreeName:  degName,
		CollegeID:   collID,
		CollegeName: collName,
		MCNo:        opt(m, "mcnumber"),
		Status:      opt(m, "class"),
	}, true
}

type SubjectResult struct {
	No           string `json:"no"`
	Subject      string `json:"sub"`
	Remarks      string `json:"remarks"`
	Type         string `json:"type"`
	EndMarks     string `json:"end_marks"`
	VivaMarks    string `json:"viva_marks"`
	IAMarks      string `json:"ia_marks"`
	TotalMarks   string `json:"total_marks"`
	CreditHrs    string `json:"credit_hrs"`
	GradePoints  string `json:"grade_points"`
	CreditPoints string `json:"credit_points"`
	Grade        string `json:"grade"`
}

type ExamResult struct {
	FullSem      string          `json:"full_sem"`
	Sem          string          `json:"sem"`
	CollegeName  string          `json:"col_name"`
	ExamDate     string          `json:"exam_date"`
	RegNo        string          `json:"reg_no"`
	FullName     string          `json:"full_name"`
	ResultDate   string          `json:"result_date"`
	RVDate       string          `json:"rv_date"`
	RTDate       string          `json:"rt_date"`
	PCDate       string          `json:"pc_date"`
	TotalCredits string          `json:"total_credits"`
	SGPA         string          `json:"sgpa"`
	CGPA         string          `json:"cgpa"`
	Percentage   string          `json:"percentage"`
	Result       string          `json:"result"`
	Subjects     []SubjectResult `json:"subjects"`
}

// DecodeExamResult decodes the marks card of one exam.
func DecodeExamResult(raw []byte) (ExamResult, bool) {
	m, ok := parseObject(raw)
	if !ok {
		return ExamResult{}, false
	}
	stud, ok := object(m, "studDet")
	if !ok {
		return ExamResult{}, false
	}
	body, ok := list(m, "body")
	if !ok {
		return ExamResult{}, false
	}
	det, ok := present(stud, "FDESCPN", "FEXAMNAME", "FCOLLNAME", "FRESEXAMDATE", "FREGNO", "FNAME")
	if !ok {
		return ExamResult{}, false
	}
	res := ExamResult{
		FullSem:     det[0],
		Sem:         det[1],
		CollegeName: det[2],
		ExamDate:    det[3],
		RegNo:       det[4],
		FullName:    det[5],
		Subjects:    make([]SubjectResult, 0, len(body)),
	}
	for i, row := range body {
		r, ok := row.(map[string]any)
		if !ok {
			continue
		}
		if i == 0 {
			res.SGPA = opt(r, "FSGPA")
			res.CGPA = opt(r, "FCGPA")
			res.Percentage = opt(r, "FPERCENT")
			res.Result = opt(r, "result")
		}
		res.Subjects = append(res.Subjects, SubjectResult{
			No:           opt(r, "sl_no"),
			Subject:      opt(r, "subject"),
			Remarks:      opt(r, "remarks1"),
			Type:         opt(r, "mthprue"),
			EndMarks:     opt(r, "uni_exam"),
			VivaMarks:    opt(r, "viva_exam"),
			IAMarks:      opt(r, "ia_exam"),
			TotalMarks:   opt(r, "thtot"),
			CreditHrs:    opt(r, "FCREDITS"),
			GradePoints:  opt(r, "FGP"),
			CreditPoints: opt(r, "FCP"),
			Grade:        opt(r, "remarks"),
		})
	}
	if dates, ok := object(m, "dates"); ok {
		res.ResultDate = opt(dates, "accDate")
		matches := datePattern.FindAllString(opt(dates, "scroll_txt"), 3)
		for i, d := range matches {
			switch i {
			case 0:
				res.RVDate = d
			case 1:
				res.RTDate = d
			case 2:
				res.PCDate = d
			}
		}
	}
	if match := creditsPattern.FindStringSubmatch(opt(m, "ecredits")); match != nil {
		res.TotalCredits = match[1]
	}
	return res, true
}

type ExamDetail struct {
	ExamType string `json:"exam_type"`
	Remark   string `json:"remark"`
	Type     string `json:"type"`
}

type SubjectDetail struct {
	Name  string                `json:"sub_name"`
	Exams map[string]ExamDetail `json:"exams"`
}

type DetailedResult struct {
	Subjects []SubjectDetail `json:"subjects"`
}

// DecodeDetailedResult decodes the per-subject breakdown of an exam.
// Subjects without any exam entry are dropped; nothing left is a failure.
func DecodeDetailedResult(raw []byte) (DetailedResult, bool) {
	m, ok := parseObject(raw)
	if !ok {
		return DetailedResult{}, false
	}
	data, ok := object(m, "data")
	if !ok || len(data) == 0 {
		return DetailedResult{}, false
	}
	res := DetailedResult{Subjects: make([]SubjectDetail, 0, len(data))}
	for name, v := range data {
		exams, ok := v.(map[string]any)
		if !ok {
			continue
		}
		sub := SubjectDetail{Name: name, Exams: make(map[string]ExamDetail)}
		for code, e := range exams {
			info, ok := e.(map[string]any)
			if !ok {
				continue
			}
			sub.Exams[code] = ExamDetail{
				ExamType: opt(info, "s"),
				Remark:   opt(info, "m"),
				Type:     opt(info, "thpr"),
			}
		}
		if len(sub.Exams) > 0 {
			res.Subjects = append(res.Subjects, sub)
		}
	}
	if len(res.Subjects) == 0 {
		return DetailedResult{}, false
	}
	sort.Slice(res.Subjects, func(i, j int) bool {
		return res.Subjects[i].Name < res.Subjects[j].Name
	})
	return res, true
}
