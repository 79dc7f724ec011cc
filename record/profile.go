package record

type Profile struct {
	FullName     string `json:"full_name"`
	FatherName   string `json:"fath_name"`
	MotherName   string `json:"mot_name"`
	DegreeID     string `json:"degree_id"`
	CollegeID    string `json:"coll_id"`
	DegreeName   string `json:"degree_name"`
	CollegeName  string `json:"coll_name"`
	Photo        string `json:"photo"`
	Category     string `json:"category"`
	DegreeGroup  string `json:"degree_grp"`
	FeeType      string `json:"fee_type"`
	RegNo        string `json:"reg_no"`
	Mobile       string `json:"smobile_no"`
	Email        string `json:"semail"`
	ParentMobile string `json:"pmobile_no"`
	ExamDate     string `json:"exam_date"`
}

// DecodeProfile decodes the profile page. The upstream answers with a
// different shape once the session is gone, so status and name are required.
func DecodeProfile(raw []byte) (Profile, bool) {
	m, ok := parseObject(raw)
	if !ok || opt(m, "status") != "success" {
		return Profile{}, false
	}
	name, ok := required(m, "fname")
	if !ok {
		return Profile{}, false
	}
	return Profile{
		FullName:     name[0],
		FatherName:   opt(m, "ffatname"),
		MotherName:   opt(m, "fmotname"),
		DegreeID:     opt(m, "fdegree"),
		CollegeID:    opt(m, "fcollcode"),
		DegreeName:   opt(m, "degree"),
		CollegeName:  opt(m, "college"),
		Photo:        opt(m, "photopath"),
		Category:     opt(m, "category"),
		DegreeGroup:  opt(m, "fdeggrp"),
		FeeType:      opt(m, "feetype"),
		RegNo:        opt(m, "strRegno"),
		Mobile:       opt(m, "strMobile"),
		Email:        opt(m, "strEmail"),
		ParentMobile: opt(m, "strParentMob"),
		ExamDate:     opt(m, "strExamdate"),
	}, true
}

type EditableProfile struct {
	RegNo      string `json:"reg_no"`
	FullName   string `json:"full_name"`
	FatherName string `json:"fath_name"`
	ABCID      string `json:"abc_id"`
	MotherName string `json:"mot_name"`
	Photo      string `json:"sphoto"`
}

// DecodeEditableProfile decodes data.studdet of the student details endpoint.
func DecodeEditableProfile(raw []byte) (EditableProfile, bool) {
	m, ok := parseObject(raw)
	if !ok {
		return EditableProfile{}, false
	}
	data, ok := object(m, "data")
	if !ok {
		return EditableProfile{}, false
	}
	det, ok := object(data, "studdet")
	if !ok {
		return EditableProfile{}, false
	}
	ids, ok := present(det, "fregno", "fname")
	if !ok {
		return EditableProfile{}, false
	}
	return EditableProfile{
		RegNo:      ids[0],
		FullName:   ids[1],
		FatherName: opt(det, "ffatname"),
		ABCID:      opt(det, "fabcno"),
		MotherName: opt(det, "fmotname"),
		Photo:      opt(det, "fphotopath"),
	}, true
}
