package hisapi

import "github.com/his/his/pkg/access"

// Resource payloads. Required fields carry "required" in their validate tag;
// every JSON tag is omitempty so that a partially filled struct marshals to a
// partial update. Fields where a zero value is meaningful are pointers.

type Patient struct {
	Meta
	Name        string `json:"name,omitempty" validate:"required,max=200"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty" validate:"required,min=5,max=32"`
	Gender      string `json:"gender,omitempty" validate:"required,oneof=male female other"`
	DateOfBirth string `json:"date_of_birth,omitempty" validate:"required,datetime=2006-01-02"`
	BloodGroup  string `json:"blood_group,omitempty" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Address     string `json:"address,omitempty"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=active inactive deceased"`
}

type Doctor struct {
	Meta
	Name            string   `json:"name,omitempty" validate:"required,max=200"`
	Email           string   `json:"email,omitempty" validate:"required,email"`
	Phone           string   `json:"phone,omitempty" validate:"omitempty,min=5,max=32"`
	Department      string   `json:"department,omitempty" validate:"required"`
	Specialization  string   `json:"specialization,omitempty" validate:"required"`
	Qualification   string   `json:"qualification,omitempty"`
	ConsultationFee *float64 `json:"consultation_fee,omitempty" validate:"omitempty,gte=0"`
	Status          string   `json:"status,omitempty" validate:"omitempty,oneof=active on-leave inactive"`
}

type Appointment struct {
	Meta
	PatientID string `json:"patient_id,omitempty" validate:"required,uuid"`
	DoctorID  string `json:"doctor_id,omitempty" validate:"required,uuid"`
	Date      string `json:"date,omitempty" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time,omitempty" validate:"required,datetime=15:04"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=scheduled confirmed completed cancelled no-show"`
}

type InvoiceItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type Invoice struct {
	Meta
	PatientID string        `json:"patient_id,omitempty" validate:"required,uuid"`
	Items     []InvoiceItem `json:"items,omitempty" validate:"required,min=1,dive"`
	Discount  *float64      `json:"discount,omitempty" validate:"omitempty,gte=0"`
	Tax       *float64      `json:"tax,omitempty" validate:"omitempty,gte=0"`
	Status    string        `json:"status,omitempty" validate:"omitempty,oneof=draft issued paid partially-paid void"`
	DueDate   string        `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Total returns the invoice amount after discount and tax.
func (i Invoice) Total() float64 {
	var sum float64
	for _, it := range i.Items {
		sum += float64(it.Quantity) * it.UnitPrice
	}
	if i.Discount != nil {
		sum -= *i.Discount
	}
	if i.Tax != nil {
		sum += *i.Tax
	}
	return sum
}

type LabSample struct {
	Meta
	PatientID   string `json:"patient_id,omitempty" validate:"required,uuid"`
	TestName    string `json:"test_name,omitempty" validate:"required"`
	SampleType  string `json:"sample_type,omitempty" validate:"required,oneof=blood urine stool swab tissue other"`
	CollectedAt string `json:"collected_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=pending collected processing completed rejected"`
	Result      string `json:"result,omitempty"`
}

type RadiologyOrder struct {
	Meta
	PatientID string `json:"patient_id,omitempty" validate:"required,uuid"`
	Modality  string `json:"modality,omitempty" validate:"required,oneof=x-ray ct mri ultrasound mammography pet"`
	BodyPart  string `json:"body_part,omitempty" validate:"required"`
	Priority  string `json:"priority,omitempty" validate:"omitempty,oneof=routine urgent stat"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=ordered scheduled performed reported cancelled"`
	Findings  string `json:"findings,omitempty"`
}

type PharmacyItem struct {
	Meta
	Name         string   `json:"name,omitempty" validate:"required"`
	GenericName  string   `json:"generic_name,omitempty"`
	Category     string   `json:"category,omitempty" validate:"required"`
	Stock        *int     `json:"stock,omitempty" validate:"required,gte=0"`
	UnitPrice    *float64 `json:"unit_price,omitempty" validate:"required,gte=0"`
	ExpiryDate   string   `json:"expiry_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

type InsurancePanel struct {
	Meta
	Name            string   `json:"name,omitempty" validate:"required"`
	ContactEmail    string   `json:"contact_email,omitempty" validate:"omitempty,email"`
	Phone           string   `json:"phone,omitempty"`
	CoveragePercent *float64 `json:"coverage_percent,omitempty" validate:"required,gte=0,lte=100"`
	Active          *bool    `json:"active,omitempty"`
}

type InsuranceClaim struct {
	Meta
	PatientID string   `json:"patient_id,omitempty" validate:"required,uuid"`
	PanelID   string   `json:"panel_id,omitempty" validate:"required,uuid"`
	InvoiceID string   `json:"invoice_id,omitempty" validate:"omitempty,uuid"`
	Amount    *float64 `json:"amount,omitempty" validate:"required,gt=0"`
	Status    string   `json:"status,omitempty" validate:"omitempty,oneof=submitted approved rejected settled"`
}

type CMSPage struct {
	Meta
	Title     string `json:"title,omitempty" validate:"required"`
	Slug      string `json:"slug,omitempty" validate:"required,slug"`
	Content   string `json:"content,omitempty"`
	Published *bool  `json:"published,omitempty"`
}

type Blog struct {
	Meta
	Title     string   `json:"title,omitempty" validate:"required"`
	Slug      string   `json:"slug,omitempty" validate:"required,slug"`
	Author    string   `json:"author,omitempty" validate:"required"`
	Content   string   `json:"content,omitempty" validate:"required"`
	Tags      []string `json:"tags,omitempty"`
	Published *bool    `json:"published,omitempty"`
}

type Slider struct {
	Meta
	Title    string `json:"title,omitempty" validate:"required"`
	ImageURL string `json:"image_url,omitempty" validate:"required,url"`
	Link     string `json:"link,omitempty" validate:"omitempty,url"`
	Order    *int   `json:"order,omitempty" validate:"omitempty,gte=0"`
	Active   *bool  `json:"active,omitempty"`
}

type SEOEntry struct {
	Meta
	Page            string   `json:"page,omitempty" validate:"required"`
	MetaTitle       string   `json:"meta_title,omitempty" validate:"required,max=70"`
	MetaDescription string   `json:"meta_description,omitempty" validate:"max=160"`
	Keywords        []string `json:"keywords,omitempty"`
}

type Announcement struct {
	Meta
	Title    string        `json:"title,omitempty" validate:"required"`
	Message  string        `json:"message,omitempty" validate:"required"`
	Audience []access.Role `json:"audience,omitempty" validate:"omitempty,dive,role"`
	Priority string        `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`
}

type Setting struct {
	Meta
	Key   string `json:"key,omitempty" validate:"required"`
	Value string `json:"value,omitempty"`
}

type LeaveRequest struct {
	Meta
	StaffID string `json:"staff_id,omitempty" validate:"required"`
	From    string `json:"from,omitempty" validate:"required,datetime=2006-01-02"`
	To      string `json:"to,omitempty" validate:"required,datetime=2006-01-02"`
	Reason  string `json:"reason,omitempty"`
	Status  string `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected"`
}

type CustomReport struct {
	Meta
	Name    string            `json:"name,omitempty" validate:"required"`
	Module  access.ModuleID   `json:"module,omitempty" validate:"required"`
	Filters map[string]string `json:"filters,omitempty"`
}

// NewPayload returns a zero payload for a resource collection.
func NewPayload(resource string) (any, bool) {
	switch resource {
	case access.ResourcePatients:
		return &Patient{}, true
	case access.ResourceDoctors:
		return &Doctor{}, true
	case access.ResourceAppointments:
		return &Appointment{}, true
	case access.ResourceInvoices:
		return &Invoice{}, true
	case access.ResourceLabSamples:
		return &LabSample{}, true
	case access.ResourceRadiologyOrders:
		return &RadiologyOrder{}, true
	case access.ResourcePharmacyInventory:
		return &PharmacyItem{}, true
	case access.ResourceInsurancePanels:
		return &InsurancePanel{}, true
	case access.ResourceInsuranceClaims:
		return &InsuranceClaim{}, true
	case access.ResourceCMSPages:
		return &CMSPage{}, true
	case access.ResourceBlogs:
		return &Blog{}, true
	case access.ResourceSliders:
		return &Slider{}, true
	case access.ResourceSEOEntries:
		return &SEOEntry{}, true
	case access.ResourceAnnouncements:
		return &Announcement{}, true
	case access.ResourceLeaveRequests:
		return &LeaveRequest{}, true
	case access.ResourceCustomReports:
		return &CustomReport{}, true
	case access.ResourceSettings:
		return &Setting{}, true
	}
	return nil, false
}
