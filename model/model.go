// Package model holds the MediTrack record types and their Avro schemas.
package model

import (
	"embed"

	"github.com/hamba/avro/v2"
)

//go:embed schemas/*.avsc
var schemaFiles embed.FS

const Namespace = "com.asnworks.meditrack.model"

var (
	patientSchema  = mustLoad("patient.avsc")
	hospitalSchema = mustLoad("hospital.avsc")
	doctorSchema   = mustLoad("doctor.avsc")
)

func mustLoad(name string) avro.Schema {
	data, err := schemaFiles.ReadFile("schemas/" + name)
	if err != nil {
		panic(err)
	}
	return avro.MustParse(string(data))
}

// Record is a type with a fixed Avro record schema.
type Record interface {
	Schema() avro.Schema
}

type Patient struct {
	ID          int32  `avro:"id"`
	FirstName   string `avro:"firstName"`
	LastName    string `avro:"lastName"`
	Age         int32  `avro:"age"`
	Gender      string `avro:"gender"`
	Address     string `avro:"address"`
	PhoneNumber string `avro:"phoneNumber"`
	Email       string `avro:"email"`
}

func (Patient) Schema() avro.Schema { return patientSchema }

type Hospital struct {
	ID          int32  `avro:"id"`
	Type        string `avro:"type"`
	Name        string `avro:"name"`
	City        string `avro:"city"`
	State       string `avro:"state"`
	PhoneNumber string `avro:"phoneNumber"`
	Email       string `avro:"email"`
}

func (Hospital) Schema() avro.Schema { return hospitalSchema }

type Doctor struct {
	ID                        int32  `avro:"id"`
	MedicalRegistrationNumber string `avro:"medicalRegistrationNumber"`
	FirstName                 string `avro:"firstName"`
	LastName                  string `avro:"lastName"`
	Gender                    string `avro:"gender"`
	Specialisation            string `avro:"specialisation"`
	Address                   string `avro:"address"`
	PhoneNumber               string `avro:"phoneNumber"`
	Email                     string `avro:"email"`
}

func (Doctor) Schema() avro.Schema { return doctorSchema }

// SamplePatients returns the records written by the duct pipeline.
func SamplePatients() []Patient {
	return []Patient{
		{ID: 111, FirstName: "AAA", LastName: "A", Age: 21, Gender: "Male", Address: "Address", PhoneNumber: "9591543252", Email: "email@email.com"},
		{ID: 222, FirstName: "BBB", LastName: "B", Age: 22, Gender: "Male", Address: "Address1", PhoneNumber: "9591543253", Email: "email1@email.com"},
	}
}
