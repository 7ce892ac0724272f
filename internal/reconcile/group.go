package reconcile

import (
	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/roster"
)

// GroupByHospital partitions roster rows by exact (hospital_name, address).
// Groups keep first-seen order and rows keep input order within a group.
func GroupByHospital(rows []roster.Row) []model.HospitalGroup {
	var groups []model.HospitalGroup
	index := make(map[model.HospitalKey]int)

	for _, row := range rows {
		rec := toRecord(row)
		key := model.HospitalKey{Name: rec.HospitalName, Address: rec.Address}

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, model.HospitalGroup{Key: key})
		}
		groups[i].Doctors = append(groups[i].Doctors, rec)
	}
	return groups
}

func toRecord(row roster.Row) model.DoctorRecord {
	return model.DoctorRecord{
		HospitalName:   row.Get("hospital_name"),
		Address:        row.Get("address"),
		DoctorName:     row.Get("doctor_name"),
		Specialization: row.Get("specialization", "specialty", "speciality"),
		Qualification:  row.Get("qualification", "qualifications"),
		PhoneNumber:    row.Get("phone_number", "phone"),
		LicenseNumber:  row.Get("license_number", "license"),
	}
}
