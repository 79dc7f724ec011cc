package record

type PracticalSubject struct {
	Code     string `json:"sub_code"`
	Name     string `json:"sub_name"`
	ExamDate string `json:"exam_date"`
	ExamNo   string `json:"exam_no"`
	Batch    string `json:"batch"`
	ExamTime string `json:"exam_time"`
}

type PracticalTimetable struct {
	StudentName string             `json:"stud_name"`
	DegreeName  string             `json:"degree_name"`
	Sem         string             `json:"sem"`
	RegNo       string             `json:"reg_no"`
	CenterName  string             `json:"center_name"`
	Subjects    []PracticalSubject `json:"subjects"`
}

// DecodePracticalTimetable decodes the practical exam timetable.
// Subject columns arrive as parallel lists and are zipped up to the shortest one.
func DecodePracticalTimetable(raw []byte) (PracticalTimetable, bool) {
	m, ok := parseObject(raw)
	if !ok {
		return PracticalTimetable{}, false
	}
	head, ok := required(m, "fname", "fdegree", "fexamname", "fregno", "centrename")
	if !ok {
		return PracticalTimetable{}, false
	}
	names := strList(m, "fsubname")
	if len(names) == 0 {
		return PracticalTimetable{}, false
	}
	columns := [][]string{
		strList(m, "fcsubcode"),
		names,
		strList(m, "fexamdate"),
		strList(m, "fexamno"),
		strList(m, "fbatch"),
		strList(m, "fexamtime"),
	}
	n := len(columns[0])
	for _, c := range columns[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	subjects := make([]PracticalSubject, 0, n)
	for i := 0; i < n; i++ {
		subjects = append(subjects, PracticalSubject{
			Code:     columns[0][i],
			Name:     columns[1][i],
			ExamDate: columns[2][i],
			ExamNo:   columns[3][i],
			Batch:    columns[4][i],
			ExamTime: columns[5][i],
		})
	}
	return PracticalTimetable{
		StudentName: head[0],
		DegreeName:  head[1],
		Sem:         head[2],
		RegNo:       head[3],
		CenterName:  head[4],
		Subjects:    subjects,
	}, true
}
