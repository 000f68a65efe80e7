// Package facegate provides a Go client SDK for facegate devices,
// a face-recognition access gate backed by a remote profile store.
//
// A device provisions an RSA-2048 keypair, enrolls a gallery of face
// embeddings from envelope-encrypted reference images, and scans probe
// images against that gallery. Every scan is appended to a tamper
// evident local audit log; a scan that accepts no face is flagged
// critical.
//
// Basic usage:
//
//	client, err := facegate.New("your-product-key",
//	    facegate.WithExtractor(extractor),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// One-time device setup
//	if !client.Provisioned() {
//	    if err := client.Provision(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	// Pull the reference gallery
//	report, err := client.Enroll(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("enrolled faces:", report.Enrolled)
//
//	// Check a probe image
//	rec, err := client.Scan(ctx, imageBytes, "front-door")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if rec.Critical {
//	    fmt.Println("no match, scan flagged")
//	}
package facegate
