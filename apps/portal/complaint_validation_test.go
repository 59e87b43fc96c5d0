package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validComplaintForm() complaintForm {
	return complaintForm{
		CitizenName:  "Rahul Patil",
		CitizenEmail: "rahul@example.in",
		CitizenPhone: "9123456780",
		Description:  "Street light not working for two weeks",
		State:        "Maharashtra",
		City:         "Nagpur",
		Pincode:      "440001",
	}
}

func TestValidateComplaintForm(t *testing.T) {
	v := newFormValidator()

	tests := []struct {
		name   string
		mutate func(f *complaintForm)
		want   map[string]string
	}{
		{
			name:   "valid",
			mutate: func(f *complaintForm) {},
			want:   map[string]string{},
		},
		{
			name:   "location is optional",
			mutate: func(f *complaintForm) { f.State, f.City, f.Pincode = "", "", "" },
			want:   map[string]string{},
		},
		{
			name:   "missing name",
			mutate: func(f *complaintForm) { f.CitizenName = "" },
			want:   map[string]string{"citizen_name": "validation_required"},
		},
		{
			name:   "bad email",
			mutate: func(f *complaintForm) { f.CitizenEmail = "rahul@" },
			want:   map[string]string{"citizen_email": "validation_email"},
		},
		{
			name:   "phone with country code",
			mutate: func(f *complaintForm) { f.CitizenPhone = "+919123456780" },
			want:   map[string]string{"citizen_phone": "validation_phone"},
		},
		{
			name:   "phone with spaces is checked as typed",
			mutate: func(f *complaintForm) { f.CitizenPhone = "91234 56780" },
			want:   map[string]string{"citizen_phone": "validation_phone"},
		},
		{
			name:   "short description",
			mutate: func(f *complaintForm) { f.Description = "broken" },
			want:   map[string]string{"description": "validation_description_min"},
		},
		{
			name:   "five digit pincode",
			mutate: func(f *complaintForm) { f.Pincode = "44000" },
			want:   map[string]string{"pincode": "validation_pincode"},
		},
		{
			name:   "unknown state",
			mutate: func(f *complaintForm) { f.State = "Atlantis" },
			want:   map[string]string{"state": "validation_state"},
		},
		{
			name: "several fields",
			mutate: func(f *complaintForm) {
				f.CitizenEmail = ""
				f.CitizenPhone = "123"
			},
			want: map[string]string{"citizen_email": "validation_required", "citizen_phone": "validation_phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validComplaintForm()
			tt.mutate(&form)
			form.normalize()
			assert.Equal(t, tt.want, validateComplaintForm(v, form))
		})
	}
}

func TestComplaintFormNormalize(t *testing.T) {
	form := complaintForm{
		CitizenName: "  Anita  ",
		State:       " orissa ",
		Pincode:     " 751001 ",
	}
	form.normalize()

	assert.Equal(t, "Anita", form.CitizenName)
	assert.Equal(t, "Odisha", form.State)
	assert.Equal(t, "751001", form.Pincode)
}

func TestComplaintFormPayloadAlwaysIndia(t *testing.T) {
	payload := validComplaintForm().toPayload()
	assert.Equal(t, "India", payload.Location.Country)
	assert.Equal(t, "Nagpur", payload.Location.City)
}
